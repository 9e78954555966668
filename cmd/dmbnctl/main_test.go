package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseRights(t *testing.T) {
	assert.Equal(t, map[string]bool{"a": true, "b": true, "c": false}, parseRights("a, b,-c,"))
	assert.Equal(t, map[string]bool{}, parseRights(""))
}
