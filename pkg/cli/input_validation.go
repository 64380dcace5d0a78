// Package cli validates interactive console input before dispatch.
package cli

import (
	"errors"
	"fmt"
	"regexp"
)

const maxLineLength = 256

// commandLine covers the whole console grammar: command words, symbol names,
// decimal numbers, and the :side / @price selection suffixes.
var commandLine = regexp.MustCompile(`^[A-Za-z0-9 ._:@-]*$`)

// ValidateInput rejects lines that cannot come from the console grammar,
// before any tokenizing happens.
func ValidateInput(input string) error {
	if len(input) > maxLineLength {
		return fmt.Errorf("input exceeds %d characters", maxLineLength)
	}
	if !commandLine.MatchString(input) {
		return errors.New("input contains unsupported characters")
	}
	return nil
}
