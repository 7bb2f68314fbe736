package retention

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// DateLayout is the date-only prefix of the CreatedAt field
const DateLayout = "2006-01-02"

// ImageRecord is a single repository:tag reference of a local image
type ImageRecord struct {
	Repository string
	Tag        string
	CreatedAt  time.Time

	// Optional details, only used for display
	ID   string
	Size int64
}

func (r ImageRecord) Reference() string {
	return fmt.Sprintf("%s:%s", r.Repository, r.Tag)
}

func (r ImageRecord) String() string {
	return fmt.Sprintf("%s - %s", r.Reference(), r.CreatedAt.Format(DateLayout))
}

// RetentionGroup is the keep/remove partition of one repository
type RetentionGroup struct {
	Repository string
	Keep       []ImageRecord
	Remove     []ImageRecord
}

func (g RetentionGroup) Total() int {
	return len(g.Keep) + len(g.Remove)
}

// MalformedRecordError is returned for a line which could not be converted to an ImageRecord
type MalformedRecordError struct {
	LineNumber int
	Line       string
	Err        error
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("line %d: %q: %s", e.LineNumber, e.Line, e.Err)
}

func (e *MalformedRecordError) Unwrap() error {
	return e.Err
}

// rawRecord uses pointers so that missing fields can be told apart from empty ones
type rawRecord struct {
	Repository *string `json:"Repository"`
	Tag        *string `json:"Tag"`
	CreatedAt  *string `json:"CreatedAt"`
	ID         string  `json:"ID"`
	Size       string  `json:"Size"`
}

// ParseLine decodes one line of "image ls --format json" output
func ParseLine(line string) (ImageRecord, error) {
	raw := rawRecord{}
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return ImageRecord{}, errors.Wrap(err, "invalid json")
	}

	switch {
	case raw.Repository == nil:
		return ImageRecord{}, errors.New("missing field: Repository")
	case raw.Tag == nil:
		return ImageRecord{}, errors.New("missing field: Tag")
	case raw.CreatedAt == nil:
		return ImageRecord{}, errors.New("missing field: CreatedAt")
	}

	datePart, _, _ := strings.Cut(*raw.CreatedAt, " ")
	createdAt, err := time.Parse(DateLayout, datePart)
	if err != nil {
		return ImageRecord{}, errors.Wrapf(err, "invalid CreatedAt %q", *raw.CreatedAt)
	}

	return ImageRecord{
		Repository: *raw.Repository,
		Tag:        *raw.Tag,
		CreatedAt:  createdAt,
		ID:         raw.ID,
		Size:       parseSize(raw.Size),
	}, nil
}

// ParseLines parses each non-blank line. Lines which can not be parsed are
// returned as *MalformedRecordError values and do not stop the parsing
func ParseLines(lines []string) ([]ImageRecord, []error) {
	records := make([]ImageRecord, 0, len(lines))
	warnings := make([]error, 0)
	for i, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		record, err := ParseLine(line)
		if err != nil {
			warnings = append(warnings, &MalformedRecordError{
				LineNumber: i + 1,
				Line:       line,
				Err:        err,
			})
			continue
		}
		records = append(records, record)
	}
	return records, warnings
}

// GroupByRepository partitions the records by repository. Groups are ordered by
// the first appearance of the repository, and records keep their input order
func GroupByRepository(records []ImageRecord) []RetentionGroup {
	index := make(map[string]int)
	groups := make([]RetentionGroup, 0)
	for _, record := range records {
		i, ok := index[record.Repository]
		if !ok {
			i = len(groups)
			index[record.Repository] = i
			groups = append(groups, RetentionGroup{Repository: record.Repository})
		}
		groups[i].Keep = append(groups[i].Keep, record)
	}
	return groups
}

// Apply splits each repository's images into the most recent limit images to keep,
// and the remaining images to remove. Images created on the same date keep their input order
func Apply(records []ImageRecord, limit int) []RetentionGroup {
	groups := GroupByRepository(records)
	for i := range groups {
		images := groups[i].Keep
		sort.SliceStable(images, func(a, b int) bool {
			return images[a].CreatedAt.After(images[b].CreatedAt)
		})

		n := max(0, min(limit, len(images)))
		groups[i].Keep = images[:n:n]
		groups[i].Remove = images[n:]
	}
	return groups
}

// Process parses the lines and applies the retention limit
func Process(lines []string, limit int) ([]RetentionGroup, []error) {
	records, warnings := ParseLines(lines)
	return Apply(records, limit), warnings
}
