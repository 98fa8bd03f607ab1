// Package translate turns a raw user utterance into an operation
// descriptor by prompting a local language model and coercing its textual
// output into typed form.
package translate

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/crmchat/crmchat/internal/descriptor"
)

// ErrModelUnavailable marks transport failures and non-success statuses
// from the model endpoint. The call is never retried.
var ErrModelUnavailable = errors.New("model endpoint unavailable")

// ModelOutputError reports model text that could not be coerced to a
// descriptor after both parse passes. Raw carries the full model output
// for diagnostics; user-facing surfaces should not echo it.
type ModelOutputError struct {
	Raw string
}

func (e *ModelOutputError) Error() string {
	return "model output is not a parseable descriptor"
}

// Translator converts one utterance into one descriptor.
type Translator interface {
	Translate(ctx context.Context, utterance string) (descriptor.Descriptor, error)
}

var fenceOpenRe = regexp.MustCompile("```[a-zA-Z]*\r?\n?")

// ParseModelOutput coerces raw model text into a descriptor. Pass one is a
// direct parse. Pass two slices the substring between the first '{' and
// the last '}' and strips markdown code fences, then parses again. A
// descriptor that parses but fails validation counts as unusable output.
func ParseModelOutput(raw string) (descriptor.Descriptor, error) {
	if d, err := descriptor.Decode([]byte(raw)); err == nil {
		if err := d.Validate(); err != nil {
			return descriptor.Descriptor{}, &ModelOutputError{Raw: raw}
		}
		return d, nil
	}
	repaired, ok := repairModelOutput(raw)
	if ok {
		if d, err := descriptor.Decode([]byte(repaired)); err == nil {
			if err := d.Validate(); err != nil {
				return descriptor.Descriptor{}, &ModelOutputError{Raw: raw}
			}
			return d, nil
		}
	}
	return descriptor.Descriptor{}, &ModelOutputError{Raw: raw}
}

func repairModelOutput(raw string) (string, bool) {
	cleaned := fenceOpenRe.ReplaceAllString(raw, "")
	cleaned = strings.ReplaceAll(cleaned, "```", "")

	first := strings.Index(cleaned, "{")
	last := strings.LastIndex(cleaned, "}")
	if first == -1 || last <= first {
		return "", false
	}
	return cleaned[first : last+1], true
}

func wrapModelUnavailable(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrModelUnavailable, fmt.Sprintf(format, args...))
}
