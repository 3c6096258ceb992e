// Copyright (c) 2024-2026 VettaAI
// Author: Arjun Mehta <arjun@vetta.ai>
//
// Licensed under GPL-2.0 with Vetta Additional Terms.
// See LICENSE.md or contact sales@vetta.ai for commercial usage.
package internal_upload

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/vettaai/pkg/commons"
	"github.com/vettaai/pkg/configs"
)

// BlockStore is the block-oriented blob destination for recording
// segments. One uncommitted block per chunk; CommitBlockList seals the
// ordered block list into a single durable object and returns its URL.
type BlockStore interface {
	PutBlock(ctx context.Context, key string, blockID string, data []byte) error
	CommitBlockList(ctx context.Context, key string, blockIDs []string, contentType string) (string, error)
}

// blockList is the commit request body. Latest means "use the most
// recently staged block with this ID" - all of ours are staged once.
type blockList struct {
	XMLName xml.Name `xml:"BlockList"`
	Latest  []string `xml:"Latest"`
}

type restBlockStore struct {
	logger commons.Logger
	client *resty.Client
	cfg    *configs.BlobStoreConfig
}

// NewRestBlockStore builds a BlockStore speaking the block-blob REST
// surface (stage block / commit block list) at cfg.Endpoint.
func NewRestBlockStore(logger commons.Logger, cfg *configs.BlobStoreConfig) BlockStore {
	client := resty.New().
		SetBaseURL(cfg.Endpoint).
		SetTimeout(30 * time.Second).
		SetHeader("x-ms-version", "2021-08-06")
	return &restBlockStore{
		logger: logger,
		client: client,
		cfg:    cfg,
	}
}

func (s *restBlockStore) PutBlock(ctx context.Context, key string, blockID string, data []byte) error {
	resp, err := s.client.R().
		SetContext(ctx).
		SetQueryParam("comp", "block").
		SetQueryParam("blockid", blockID).
		SetQueryParamsFromValues(s.sasValues()).
		SetHeader("Content-Type", "application/octet-stream").
		SetBody(data).
		Put(s.blobPath(key))
	if err != nil {
		return fmt.Errorf("put block %s: %w", blockID, err)
	}
	if resp.IsError() {
		return fmt.Errorf("put block %s: unexpected status %d: %s", blockID, resp.StatusCode(), resp.String())
	}
	return nil
}

func (s *restBlockStore) CommitBlockList(ctx context.Context, key string, blockIDs []string, contentType string) (string, error) {
	body, err := xml.Marshal(blockList{Latest: blockIDs})
	if err != nil {
		return "", fmt.Errorf("marshal block list: %w", err)
	}

	resp, err := s.client.R().
		SetContext(ctx).
		SetQueryParam("comp", "blocklist").
		SetQueryParamsFromValues(s.sasValues()).
		SetHeader("Content-Type", "application/xml").
		SetHeader("x-ms-blob-content-type", contentType).
		SetBody(append([]byte(xml.Header), body...)).
		Put(s.blobPath(key))
	if err != nil {
		return "", fmt.Errorf("commit block list for %s: %w", key, err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("commit block list for %s: unexpected status %d: %s", key, resp.StatusCode(), resp.String())
	}

	s.logger.Infof("committed %d blocks into %s", len(blockIDs), key)
	return fmt.Sprintf("%s/%s", s.cfg.Endpoint, s.blobPath(key)), nil
}

func (s *restBlockStore) blobPath(key string) string {
	return fmt.Sprintf("%s/%s", s.cfg.Container, key)
}

func (s *restBlockStore) sasValues() url.Values {
	values := url.Values{}
	if s.cfg.SasToken == "" {
		return values
	}
	parsed, err := url.ParseQuery(s.cfg.SasToken)
	if err != nil {
		s.logger.Warnw("unparsable sas token, sending requests unsigned", "error", err)
		return values
	}
	return parsed
}
