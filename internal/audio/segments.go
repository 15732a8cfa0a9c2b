package audio

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

const (
	// InputBase is the base name of the source file inside the engine.
	InputBase = "input"
	// SegmentPrefix starts every produced segment name.
	SegmentPrefix = "output_"
)

// InputName returns the engine-side name of the source file.
func InputName(ext string) string {
	return InputBase + "." + ext
}

// SegmentPattern returns the output pattern: a 3-digit zero-padded ordinal
// and the source extension, so copy mode writes into a compatible container.
func SegmentPattern(ext string) string {
	return SegmentPrefix + "%03d." + ext
}

// SegmentName returns the name of the segment with the given ordinal.
func SegmentName(index int, ext string) string {
	return fmt.Sprintf(SegmentPattern(ext), index)
}

// SegmentArgs builds the engine command that splits input into fixed-length
// segments without re-encoding.
func SegmentArgs(input string, d Duration, ext string) []string {
	return []string{
		"-i", input,
		"-f", "segment",
		"-segment_time", d.Arg(),
		"-c", "copy",
		SegmentPattern(ext),
	}
}

// Segment is a produced output file with its parsed ordinal.
type Segment struct {
	Name  string
	Index int
}

// MatchSegments picks the produced segments out of names and returns them in
// ascending ordinal order, whatever order names came in.
func MatchSegments(names []string, ext string) []Segment {
	suffix := "." + ext

	var segments []Segment
	for _, name := range names {
		if !strings.HasPrefix(name, SegmentPrefix) || !strings.HasSuffix(name, suffix) {
			continue
		}
		ordinal := strings.TrimSuffix(strings.TrimPrefix(name, SegmentPrefix), suffix)
		index, err := strconv.Atoi(ordinal)
		if err != nil || index < 0 {
			continue
		}
		segments = append(segments, Segment{Name: name, Index: index})
	}

	sort.Slice(segments, func(i, j int) bool {
		return segments[i].Index < segments[j].Index
	})
	return segments
}
