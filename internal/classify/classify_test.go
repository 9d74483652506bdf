package classify

import "testing"

func TestClassifyEveryPattern(t *testing.T) {
	cases := []struct {
		tail string
		want Category
	}{
		{"PrismaClientInitializationError: could not connect", CategoryPrisma},
		{"PrismaClientKnownRequestError: P2002", CategoryPrisma},
		{"PrismaClientUnknownRequestError at query", CategoryPrisma},
		{"PrismaClientRustPanicError: panic in engine", CategoryPrisma},
		{"@prisma/client did not initialize yet", CategoryPrisma},
		{"Error: Cannot find module 'express'", CategoryModule},
		{"code: 'MODULE_NOT_FOUND'", CategoryModule},
		{"SyntaxError: Unexpected token", CategoryModule},
		{"FATAL ERROR: Reached heap limit", CategoryMemory},
		{"JavaScript heap out of memory", CategoryMemory},
		{"Allocation failed - process out of memory", CategoryMemory},
		{"Error: connect ECONNREFUSED 127.0.0.1:5432", CategoryConnection},
		{"getaddrinfo ENOTFOUND db.internal", CategoryConnection},
		{"getaddrinfo EAI_AGAIN registry.npmjs.org", CategoryConnection},
		{"Error: connect ETIMEDOUT 10.0.0.5:443", CategoryConnection},
	}
	for _, tc := range cases {
		got := Classify(tc.tail).Primary(CategoryUnknown)
		if got != tc.want {
			t.Errorf("Classify(%q).Primary = %s, want %s", tc.tail, got, tc.want)
		}
	}
}

func TestClassifyNoMatch(t *testing.T) {
	flags := Classify("2024-01-01 server listening on :3000")
	if flags.Any() {
		t.Fatalf("expected no flags, got %+v", flags)
	}
	if got := flags.Primary(CategoryUnknown); got != CategoryUnknown {
		t.Errorf("Primary(unknown) = %s, want unknown", got)
	}
	if got := flags.Primary(CategoryUnresponsive); got != CategoryUnresponsive {
		t.Errorf("Primary(unresponsive) = %s, want unresponsive", got)
	}
}

// Multiple families can match at once; the priority order decides.
func TestPrimaryPriority(t *testing.T) {
	tail := "connect ECONNREFUSED\nJavaScript heap out of memory\nCannot find module 'x'\nPrismaClientInitializationError"
	flags := Classify(tail)
	if !flags.Prisma || !flags.Module || !flags.Memory || !flags.Connection {
		t.Fatalf("expected all flags set, got %+v", flags)
	}
	if got := flags.Primary(CategoryUnknown); got != CategoryPrisma {
		t.Errorf("priority: got %s, want prisma", got)
	}

	flags.Prisma = false
	if got := flags.Primary(CategoryUnknown); got != CategoryModule {
		t.Errorf("priority without prisma: got %s, want module", got)
	}
	flags.Module = false
	if got := flags.Primary(CategoryUnknown); got != CategoryMemory {
		t.Errorf("priority without module: got %s, want memory", got)
	}
	flags.Memory = false
	if got := flags.Primary(CategoryUnknown); got != CategoryConnection {
		t.Errorf("priority without memory: got %s, want connection", got)
	}
}
