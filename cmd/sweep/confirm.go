package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// confirm asks the operator to approve a long run. Anything but yes declines.
func confirm(in io.Reader, out io.Writer, total int) bool {
	fmt.Fprintf(out, "FULL level runs %d tests and may take days. Continue? [y/N]: ", total)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		fmt.Fprintln(out)
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}
