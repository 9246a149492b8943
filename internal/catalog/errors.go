package catalog

import (
	"errors"
	"fmt"
	"strings"

	"hr-lifecycle/backend/pkg/models"
)

var (
	// ErrInvalidCatalog marks a malformed catalog. It is fatal at startup.
	ErrInvalidCatalog = errors.New("invalid catalog")
	// ErrUnknownTrack is returned for a track the catalog does not define.
	ErrUnknownTrack = errors.New("unknown track")
)

// Error wraps catalog failures with the offending track.
type Error struct {
	Kind  error
	Track models.Track
	Msg   string
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	if e.Track != "" {
		fmt.Fprintf(&b, " %q", string(e.Track))
	}
	if e.Msg != "" {
		b.WriteString(": ")
		b.WriteString(e.Msg)
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Kind }

func invalidf(track models.Track, format string, args ...any) error {
	return &Error{Kind: ErrInvalidCatalog, Track: track, Msg: fmt.Sprintf(format, args...)}
}

func cycleError(track models.Track, path []string) error {
	msg := "dependency cycle"
	if len(path) > 0 {
		msg = "dependency cycle: " + strings.Join(path, " -> ")
	}
	return &Error{Kind: ErrInvalidCatalog, Track: track, Msg: msg}
}

func unknownTrack(track models.Track) error {
	return &Error{Kind: ErrUnknownTrack, Track: track}
}
