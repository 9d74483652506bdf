// Package classify inspects the monitored application's recent stderr output
// and maps it onto a known failure category. Matching is plain substring
// matching against a fixed signature table so tests can enumerate every
// pattern against its expected category.
package classify

import "strings"

// Category is the single classification chosen to drive recovery strategy.
type Category string

const (
	CategoryPrisma       Category = "prisma"
	CategoryModule       Category = "module"
	CategoryMemory       Category = "memory"
	CategoryConnection   Category = "connection"
	CategoryUnresponsive Category = "unresponsive"
	CategoryUnknown      Category = "unknown"
)

// Flags records every signature family that matched the log tail. More than
// one may be set at once; Primary picks the one recovery acts on.
type Flags struct {
	Prisma     bool `json:"prisma"`
	Module     bool `json:"module"`
	Memory     bool `json:"memory"`
	Connection bool `json:"connection"`
}

// signatures is the ordered pattern table. Order within a family does not
// matter; the family priority lives in Flags.Primary.
var signatures = []struct {
	pattern string
	family  Category
}{
	{"PrismaClientInitializationError", CategoryPrisma},
	{"PrismaClientKnownRequestError", CategoryPrisma},
	{"PrismaClientUnknownRequestError", CategoryPrisma},
	{"PrismaClientRustPanicError", CategoryPrisma},
	{"@prisma/client did not initialize", CategoryPrisma},
	{"Cannot find module", CategoryModule},
	{"MODULE_NOT_FOUND", CategoryModule},
	{"SyntaxError", CategoryModule},
	{"JavaScript heap out of memory", CategoryMemory},
	{"FATAL ERROR", CategoryMemory},
	{"Allocation failed", CategoryMemory},
	{"ECONNREFUSED", CategoryConnection},
	{"ENOTFOUND", CategoryConnection},
	{"EAI_AGAIN", CategoryConnection},
	{"connect ETIMEDOUT", CategoryConnection},
}

// Classify scans tail for every known signature and returns the matched
// families. It is a pure function of its input.
func Classify(tail string) Flags {
	var f Flags
	for _, sig := range signatures {
		if !strings.Contains(tail, sig.pattern) {
			continue
		}
		switch sig.family {
		case CategoryPrisma:
			f.Prisma = true
		case CategoryModule:
			f.Module = true
		case CategoryMemory:
			f.Memory = true
		case CategoryConnection:
			f.Connection = true
		}
	}
	return f
}

// Primary collapses the matched families into a single category.
// Priority: prisma > module > memory > connection > fallback. ORM-client
// corruption cascades into secondary symptoms, so it is diagnosed first.
// fallback distinguishes "process runs but never answers" (unresponsive)
// from "no signature matched" (unknown); callers pass the one that applies.
func (f Flags) Primary(fallback Category) Category {
	switch {
	case f.Prisma:
		return CategoryPrisma
	case f.Module:
		return CategoryModule
	case f.Memory:
		return CategoryMemory
	case f.Connection:
		return CategoryConnection
	case fallback == CategoryUnresponsive:
		return CategoryUnresponsive
	default:
		return CategoryUnknown
	}
}

// Any reports whether any signature family matched.
func (f Flags) Any() bool {
	return f.Prisma || f.Module || f.Memory || f.Connection
}
