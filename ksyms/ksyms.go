// Package ksyms loads the kernel symbol table from /proc/kallsyms for use
// as a probe target catalog.
package ksyms

import (
	"bufio"
	"os"
	"strings"
)

const defaultSymFile = "/proc/kallsyms"

// Catalog is an in-memory snapshot of the kernel symbol names, in kallsyms
// order.
type Catalog struct {
	names []string
}

// Load reads the symbol table from /proc/kallsyms.
func Load() (*Catalog, error) {
	return LoadFile(defaultSymFile)
}

// LoadFile reads a kallsyms-formatted symbol table from the given path.
// Only text symbols are kept; data symbols cannot host function probes.
func LoadFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	c := &Catalog{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		// <address> <type> <name> [module]
		fields := strings.Fields(scanner.Text())
		if len(fields) < 3 {
			continue
		}
		switch fields[1] {
		case "t", "T", "w", "W":
			c.names = append(c.names, fields[2])
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return c, nil
}

// Len returns the number of symbols in the catalog.
func (c *Catalog) Len() int {
	return len(c.names)
}

// ForEach calls fn for every symbol name in catalog order until fn returns
// false.
func (c *Catalog) ForEach(fn func(name string) bool) {
	for _, name := range c.names {
		if !fn(name) {
			return
		}
	}
}
