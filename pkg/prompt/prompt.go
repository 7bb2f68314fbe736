package prompt

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

var ErrInvalidLimit = errors.New("invalid input, please enter a valid integer")

// Prompter asks questions on an output stream and reads the answers line by line
type Prompter struct {
	in  *bufio.Reader
	out io.Writer

	// AssumeYes answers all confirmations without reading the input
	AssumeYes bool
}

func NewPrompter(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{
		in:  bufio.NewReader(in),
		out: out,
	}
}

func (p *Prompter) readLine() (string, error) {
	line, err := p.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// Limit asks for the number of images to keep
func (p *Prompter) Limit(question string) (int, error) {
	fmt.Fprint(p.out, question)
	answer, err := p.readLine()
	if err != nil {
		return 0, errors.Wrap(ErrInvalidLimit, "no input")
	}
	return ParseLimit(answer)
}

func ParseLimit(v string) (int, error) {
	limit, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, errors.Wrapf(ErrInvalidLimit, "%q", v)
	}
	return limit, nil
}

// Confirm returns true only if the answer is "y" (case-insensitive)
func (p *Prompter) Confirm(question string) bool {
	fmt.Fprint(p.out, question)
	if p.AssumeYes {
		fmt.Fprintln(p.out, "y")
		return true
	}
	answer, err := p.readLine()
	if err != nil {
		fmt.Fprintln(p.out)
		return false
	}
	return strings.EqualFold(answer, "y")
}
