/*package format handles halox's miniature formatting language for sets of
steps, e.g.:

   Gather = 0..100 - 63 + 200

Sequence formats are a generic way to specify non-contiguous sequences of
natural numbers. They consist of a series of n tokens separated by "+" or "-".
Each token can be either a number or two numbers separted by "..". E.g.:

  100
  0..100
  0..10 + 100
  0..100 - 63 - 10..20

These strings build up sequences of numbers by adding/removing individual
numbers and contiguous sequences. For example, 0 through 10 would be 0..10,
1, 2, 3, 15, 16, 17 could be written as  1..17 - 4..13. This is useful for
gathering only around the steps you care about.

All spaces around "-" and "+" symbols are ignored.
*/
package format

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	h_error "github.com/phil-mansfield/halox/lib/error"
)

const (
	// Any expanded formats which would have more than BigNumber elements are
	// assumed to be bugs.
	BigNumber = 1 << 20
)

// ExpandSequenceFormat expands a sequence format string into a sorted sequence
// of integers.
func ExpandSequenceFormat(format string) ([]int, error) {
	// Parse and error-check the format string.
	tok, err := tokeniseSequenceFormat(format)
	if err != nil {
		return nil, err
	}
	adds, subs, err := addsSubsSequenceFormat(tok)
	if err != nil {
		return nil, err
	}

	// Add numbers to the sequence.
	m := map[int]bool{}
	for i := range adds {
		for _, n := range parseSequenceFormatToken(adds[i]) {
			if m[n] {
				return nil, fmt.Errorf("The number %d is added more than "+
					"once.", n)
			}
			m[n] = true
		}
		if len(m) > BigNumber {
			return nil, fmt.Errorf("This sequence would have more than %d "+
				"elements, which is almost certianly a bug.", BigNumber)
		}
	}

	// Remove numbers from the sequence.
	for i := range subs {
		for _, n := range parseSequenceFormatToken(subs[i]) {
			if !m[n] {
				return nil, fmt.Errorf("The number %d is removed more times "+
					"than it was inserted.", n)
			}
			delete(m, n)
		}
	}

	// Convert to a sorted array of integers.
	out := []int{}
	for n := range m {
		out = append(out, n)
	}
	sort.Ints(out)

	return out, nil
}

// ExpandStepFormat expands a sequence format which lists simulation steps.
// An empty format is an empty list, and every step must be in [0, steps].
func ExpandStepFormat(format string, steps int) ([]int, error) {
	if strings.TrimSpace(format) == "" {
		return []int{}, nil
	}

	out, err := ExpandSequenceFormat(format)
	if err != nil {
		return nil, err
	}
	for _, n := range out {
		if n < 0 || n > steps {
			return nil, fmt.Errorf("Step %d is outside the range [0, %d].",
				n, steps)
		}
	}
	return out, nil
}

// tokeniseSequenceFormat splits a sequence format string into numbers, ranges,
// and operators.
func tokeniseSequenceFormat(format string) ([]string, error) {
	// Make sure all operators are separated by spaces.
	formatClean := strings.ReplaceAll(format, "+", " + ")
	formatClean = strings.ReplaceAll(formatClean, "-", " - ")

	tok := strings.Fields(formatClean)
	if len(tok) == 0 {
		return nil, fmt.Errorf("The format string is empty.")
	}
	return tok, nil
}

func addsSubsSequenceFormat(tok []string) (adds, subs []string, err error) {
	if len(tok) == 0 {
		return nil, nil, fmt.Errorf("Format string is empty")
	}

	// Handle the case where the starting "+" is dropped.
	adds, subs = []string{}, []string{}
	var start int
	if tok[0] == "+" || tok[0] == "-" {
		start = 0
	} else {
		if err := isSequenceFormatToken(tok[0]); err != nil {
			return nil, nil, fmt.Errorf(
				"Element number %d, '%s', cannot be parsed because %s",
				1, tok[0], err.Error(),
			)
		}

		adds = append(adds, tok[0])
		start = 1
	}

	for i := start; i < len(tok); i += 2 {
		if tok[i] != "-" && tok[i] != "+" {
			return nil, nil, fmt.Errorf(
				"Element number %d, '%s', should be a '-' or '+', but isn't.",
				i+1, tok[i])
		}

		if i+1 >= len(tok) {
			return nil, nil, fmt.Errorf(
				"The format string ends in a trailing '%s'", tok[i],
			)
		}

		if err := isSequenceFormatToken(tok[i+1]); err != nil {
			return nil, nil, fmt.Errorf(
				"Element number %d, '%s', cannot be parsed because %s",
				i+2, tok[i+1], err.Error(),
			)
		}

		if tok[i] == "+" {
			adds = append(adds, tok[i+1])
		} else {
			subs = append(subs, tok[i+1])
		}
	}

	return adds, subs, nil
}

// isSequenceFormatToken returns a nil error is tok is a valid token for
// a sequence format and an error describing the problem otherwise. The error
// message assumes it is printed after a trailing "beacause"
func isSequenceFormatToken(tok string) error {
	if len(tok) == 0 {
		return fmt.Errorf("the format string is empty.")
	}

	bounds := strings.Split(tok, "..")

	switch len(bounds) {
	case 1:
		_, err := strconv.Atoi(bounds[0])
		if err != nil {
			return fmt.Errorf("'%s' is not an integer.", bounds[0])
		}
		return nil
	case 2:
		start, err1 := strconv.Atoi(bounds[0])
		if err1 != nil {
			return fmt.Errorf("'%s' is not an integer.", bounds[0])
		}
		end, err2 := strconv.Atoi(bounds[1])
		if err2 != nil {
			return fmt.Errorf("'%s' is not an integer.", bounds[1])
		}
		if end < start {
			return fmt.Errorf("lower bound %d is larger than upper bound %d.",
				start, end)
		} else if end-start >= BigNumber {
			return fmt.Errorf("the range %d..%d has more than %d elements.",
				start, end, BigNumber)
		}

		return nil
	}
	return fmt.Errorf("it has more than one '..'.")
}

// parseSeqeunceFormatToken parses a single token in a seqeunce format stirng
// and returns the corresponding array of numbers. This function assumes that
// the tests in isSequenceFormatToken have already been run and thus does no
// error checking.
func parseSequenceFormatToken(tok string) []int {
	bounds := strings.Split(tok, "..")

	switch len(bounds) {
	case 1:
		n, _ := strconv.Atoi(tok)
		return []int{n}
	case 2:
		start, _ := strconv.Atoi(bounds[0])
		end, _ := strconv.Atoi(bounds[1])
		out := []int{}
		for n := start; n <= end; n++ {
			out = append(out, n)
		}

		return out
	}

	h_error.Internal(
		"Invalid sequence format token, '%s', passed isSeqeunceFormatToken()",
		tok,
	)
	return nil
}
