package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/teslashibe/go-manual/internal/control"
)

// followPositions reads "x y z" lines from r and drags the avatar along them.
// Moves inside the client's rate limit are dropped, but the last line always lands.
func followPositions(ctx context.Context, client *control.Client, r io.Reader) error {
	scanner := bufio.NewScanner(r)

	var pending []float64
	line := 0
	for scanner.Scan() {
		line++

		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
			continue
		}
		if len(fields) != 3 {
			return fmt.Errorf("line %d: want x y z, got %d fields", line, len(fields))
		}

		coords, err := parseFloats(fields)
		if err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}

		sent, err := client.MoveTo(ctx, coords[0], coords[1], coords[2])
		if err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		if sent {
			pending = nil
		} else {
			pending = coords
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read positions: %w", err)
	}

	if pending != nil {
		if _, err := client.SetPosition(ctx, pending[0], pending[1], pending[2]); err != nil {
			return fmt.Errorf("final position: %w", err)
		}
	}
	return nil
}

func printClientStats(w io.Writer, stats control.ClientStats) {
	fmt.Fprintf(w, "sent %d, skipped %d, errors %d\n",
		stats.CommandsSent, stats.MovesSkipped, stats.CommandErrors)
}
