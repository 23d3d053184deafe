// Package env loads variable definitions from name=value files.
package env

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// Pair is one variable definition, order preserved from the file.
type Pair struct {
	Name  string
	Value string
}

// LoadVariablesFile parses a variables file. Each non-empty, non-comment
// line must be name=value; quoted values lose their quotes. A line without
// = is an error rather than silently skipped, a typo there should not
// produce an undefined variable later.
func LoadVariablesFile(path string) ([]Pair, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open variables file: %w", err)
	}
	defer file.Close()

	var pairs []Pair
	scanner := bufio.NewScanner(file)
	lineNo := 0

	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		name, value, found := strings.Cut(line, "=")
		if !found {
			return nil, fmt.Errorf("%s:%d: expected name=value", path, lineNo)
		}
		name = strings.TrimSpace(name)
		value = strings.TrimSpace(value)
		if name == "" {
			return nil, fmt.Errorf("%s:%d: empty variable name", path, lineNo)
		}

		if len(value) >= 2 {
			if (value[0] == '"' && value[len(value)-1] == '"') ||
				(value[0] == '\'' && value[len(value)-1] == '\'') {
				value = value[1 : len(value)-1]
			}
		}
		pairs = append(pairs, Pair{Name: name, Value: value})
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading variables file: %w", err)
	}
	return pairs, nil
}
