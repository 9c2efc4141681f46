// Copyright (c) 2025 Querypilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	base := stderrors.New("dial tcp: connection refused")
	wrapped := fmt.Errorf("build catalog: %w", Wrap(CatalogUnavailable, "cannot load tables", base))

	assert.Equal(t, CatalogUnavailable, KindOf(wrapped))
	assert.True(t, IsKind(wrapped, CatalogUnavailable))
	assert.False(t, IsKind(wrapped, LLMUnavailable))
	assert.ErrorIs(t, wrapped, base)
	assert.ErrorIs(t, wrapped, New(CatalogUnavailable, ""))
	assert.Equal(t, Kind(""), KindOf(base))
}

func TestErrorString(t *testing.T) {
	assert.Equal(t, "llm_unavailable: no response", New(LLMUnavailable, "no response").Error())
	assert.Equal(t, "invalid_config: bad timeout: boom",
		Wrap(InvalidConfig, "bad timeout", stderrors.New("boom")).Error())
}
