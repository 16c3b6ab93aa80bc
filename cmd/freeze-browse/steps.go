package main

import (
	"fmt"
	"strings"
	"time"
)

type stepKind string

const (
	stepGoto    stepKind = "goto"
	stepClick   stepKind = "click"
	stepBack    stepKind = "back"
	stepForward stepKind = "forward"
	stepWait    stepKind = "wait"
	stepDump    stepKind = "dump"
)

type step struct {
	kind stepKind
	arg  string
	wait time.Duration
}

func (s step) String() string {
	if s.arg == "" {
		return string(s.kind)
	}
	return string(s.kind) + ":" + s.arg
}

// parseSteps parses "goto:/path", "click:Anchor text", "back", "forward",
// "wait:500ms" and "dump".
func parseSteps(args []string) ([]step, error) {
	steps := make([]step, 0, len(args))
	for _, raw := range args {
		kind, arg, _ := strings.Cut(raw, ":")
		s := step{kind: stepKind(kind), arg: arg}

		switch s.kind {
		case stepGoto, stepClick:
			if arg == "" {
				return nil, fmt.Errorf("step %q needs an argument", raw)
			}
		case stepBack, stepForward, stepDump:
			if arg != "" {
				return nil, fmt.Errorf("step %q takes no argument", raw)
			}
		case stepWait:
			d, err := time.ParseDuration(arg)
			if err != nil {
				return nil, fmt.Errorf("step %q: %w", raw, err)
			}
			s.wait = d
		default:
			return nil, fmt.Errorf("unknown step %q", raw)
		}
		steps = append(steps, s)
	}
	return steps, nil
}
