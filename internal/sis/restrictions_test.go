package sis

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestParseRestrictions_SimpleMajorAndNotMajor(t *testing.T) {
	fragment := `
<section aria-labelledby="restrictions">
<span>Must be enrolled in one of the following Majors:</span>
<span>Computer Science (CSCI)</span>
<span>Cannot be enrolled in one of the following Majors:</span>
<span>Business (BUS)</span>
</section>`

	result := ParseRestrictions(zerolog.Nop(), "202309", "12345", fragment)

	assert.Equal(t, []string{"Computer Science (CSCI)"}, result["major"])
	assert.Equal(t, []string{"Business (BUS)"}, result["not_major"])
	assert.Equal(t, []string{}, result["level"])
}

func TestParseRestrictions_CommaSplitAcrossSpans(t *testing.T) {
	// The item "Computer Science, Information Technology (CSCI)" is split by
	// the tokenizer on its internal comma into two spans; the parser must
	// rejoin them until a closing parenthesis appears.
	fragment := `
<section aria-labelledby="restrictions">
<span>Must be enrolled in one of the following Majors:</span>
<span>Computer Science</span>
<span> Information Technology (CSCI)</span>
</section>`

	result := ParseRestrictions(zerolog.Nop(), "202309", "12345", fragment)

	assert.Equal(t, []string{"Computer Science, Information Technology (CSCI)"}, result["major"])
}

func TestParseRestrictions_SpecialApprovalsNoParenBalancing(t *testing.T) {
	fragment := `
<section aria-labelledby="restrictions">
<span>Special Approvals:</span>
<span>Special permission of instructor</span>
<span>Department approval required</span>
</section>`

	result := ParseRestrictions(zerolog.Nop(), "202309", "12345", fragment)

	assert.Equal(t, []string{"Special permission of instructor", "Department approval required"},
		result["special_approval"])
}

func TestParseRestrictions_HeaderAbandonsOpenBuffer(t *testing.T) {
	// An unterminated buffer is abandoned when a new header appears; the
	// abandoned span is never emitted since it never closed a parenthesis.
	fragment := `
<section aria-labelledby="restrictions">
<span>Must be enrolled in one of the following Majors:</span>
<span>Computer Science (unterminated</span>
<span>Must be enrolled in one of the following Levels:</span>
<span>Graduate (GR)</span>
</section>`

	result := ParseRestrictions(zerolog.Nop(), "202309", "12345", fragment)

	assert.Equal(t, []string{}, result["major"])
	assert.Equal(t, []string{"Graduate (GR)"}, result["level"])
}

func TestParseRestrictions_MissingSectionReturnsEmptyKnownKeys(t *testing.T) {
	result := ParseRestrictions(zerolog.Nop(), "202309", "12345", `<div>no restrictions here</div>`)

	assert.Equal(t, []string{}, result["major"])
	assert.Equal(t, []string{}, result["not_major"])
	_, hasSpecialNotVariant := result["not_special_approval"]
	assert.False(t, hasSpecialNotVariant)
}
