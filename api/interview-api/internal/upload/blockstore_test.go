// Copyright (c) 2024-2026 VettaAI
// Author: Arjun Mehta <arjun@vetta.ai>
//
// Licensed under GPL-2.0 with Vetta Additional Terms.
// See LICENSE.md or contact sales@vetta.ai for commercial usage.
package internal_upload

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vettaai/pkg/commons"
	"github.com/vettaai/pkg/configs"
)

func newTestBlockStore(t *testing.T, handler http.HandlerFunc) BlockStore {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	logger, _ := commons.NewApplicationLogger()
	return NewRestBlockStore(logger, &configs.BlobStoreConfig{
		Endpoint:  server.URL,
		Container: "interview-recordings",
		SasToken:  "sv=2021&sig=abc",
	})
}

func TestRestBlockStore_PutBlock(t *testing.T) {
	var gotPath, gotComp, gotBlockID, gotSig string
	var gotBody []byte

	store := newTestBlockStore(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotComp = r.URL.Query().Get("comp")
		gotBlockID = r.URL.Query().Get("blockid")
		gotSig = r.URL.Query().Get("sig")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
	})

	err := store.PutBlock(context.Background(), "user-1/recording-0.webm", blockID(0), []byte("segment-bytes"))
	require.NoError(t, err)

	assert.Equal(t, "/interview-recordings/user-1/recording-0.webm", gotPath)
	assert.Equal(t, "block", gotComp)
	assert.Equal(t, blockID(0), gotBlockID)
	assert.Equal(t, "abc", gotSig, "sas token must be forwarded")
	assert.Equal(t, []byte("segment-bytes"), gotBody)
}

func TestRestBlockStore_PutBlockErrorStatus(t *testing.T) {
	store := newTestBlockStore(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "authentication failed", http.StatusForbidden)
	})

	err := store.PutBlock(context.Background(), "k", blockID(0), []byte("x"))
	assert.ErrorContains(t, err, "403")
}

func TestRestBlockStore_CommitBlockList(t *testing.T) {
	var gotComp, gotContentType string
	var gotBody string

	store := newTestBlockStore(t, func(w http.ResponseWriter, r *http.Request) {
		gotComp = r.URL.Query().Get("comp")
		gotContentType = r.Header.Get("x-ms-blob-content-type")
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.WriteHeader(http.StatusCreated)
	})

	url, err := store.CommitBlockList(context.Background(), "user-1/recording-0.webm",
		[]string{blockID(0), blockID(1)}, "video/webm")
	require.NoError(t, err)

	assert.Equal(t, "blocklist", gotComp)
	assert.Equal(t, "video/webm", gotContentType)
	assert.True(t, strings.HasSuffix(url, "/interview-recordings/user-1/recording-0.webm"))

	// Block order in the XML body must match the committed sequence.
	first := strings.Index(gotBody, blockID(0))
	second := strings.Index(gotBody, blockID(1))
	require.NotEqual(t, -1, first)
	require.NotEqual(t, -1, second)
	assert.Less(t, first, second)
	assert.Contains(t, gotBody, "<BlockList>")
}

func TestRestBlockStore_CommitErrorStatus(t *testing.T) {
	store := newTestBlockStore(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "block not found", http.StatusBadRequest)
	})

	_, err := store.CommitBlockList(context.Background(), "k", []string{blockID(0)}, "video/webm")
	assert.ErrorContains(t, err, "400")
}
