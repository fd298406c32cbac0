package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/haldanelabs/tvarstm"
)

// tvarClient is the thin seam between the CLI's subcommands and however they actually reach a
// Store: over HTTP against a running tvarserver, or in-process with --embed.
type tvarClient interface {
	New(ctx context.Context, id string, value any) error
	Get(ctx context.Context, id, path string) (value any, version uint64, err error)
	Set(ctx context.Context, id string, value any) error
	Patch(ctx context.Context, id, path string, value any) error
	Close() error
}

// resolveClient builds the tvarClient a subcommand should use, based on the --embed and --server
// persistent flags.
func resolveClient(cmd *cobra.Command) (tvarClient, error) {
	embed, _ := cmd.Flags().GetBool("embed")
	if embed {
		store, err := openEmbedded(cmd)
		if err != nil {
			return nil, err
		}
		return &embeddedClient{store: store}, nil
	}
	base, _ := cmd.Flags().GetString("server")
	return &httpClient{base: base, http: http.DefaultClient}, nil
}

type embeddedClient struct {
	store *stm.Store
}

func (c *embeddedClient) New(ctx context.Context, id string, value any) error {
	return c.store.NewTVar(ctx, id, value)
}

func (c *embeddedClient) Get(ctx context.Context, id, path string) (any, uint64, error) {
	var value any
	err := c.store.Atomically(ctx, func(ctx context.Context, tx *stm.Tx) error {
		var err error
		if path == "" {
			value, err = tx.ReadTVar(ctx, id)
		} else {
			value, err = tx.ReadTVarPath(ctx, id, path)
		}
		return err
	})
	if err != nil {
		return nil, 0, err
	}
	version, _, err := c.store.CurrentVersion(ctx, id)
	return value, version, err
}

func (c *embeddedClient) Set(ctx context.Context, id string, value any) error {
	return c.store.Atomically(ctx, func(ctx context.Context, tx *stm.Tx) error {
		tx.WriteTVar(id, value)
		return nil
	})
}

func (c *embeddedClient) Patch(ctx context.Context, id, path string, value any) error {
	return c.store.Atomically(ctx, func(ctx context.Context, tx *stm.Tx) error {
		return tx.UpdateTVarPath(id, path, value)
	})
}

func (c *embeddedClient) Close() error { return c.store.Close() }

type httpClient struct {
	base string
	http *http.Client
}

func (c *httpClient) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		var payload struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&payload)
		if payload.Error == "" {
			payload.Error = resp.Status
		}
		return nil, fmt.Errorf("tvarserver: %s", payload.Error)
	}
	return resp, nil
}

func (c *httpClient) New(ctx context.Context, id string, value any) error {
	resp, err := c.do(ctx, http.MethodPost, "/tvars/"+id, value)
	if err != nil {
		return err
	}
	return resp.Body.Close()
}

// Get requests GET /tvars/:id, with path appended as a further URL segment when non-empty.
// tvarserver registers no GET route below /tvars/:id, so a request with a path is answered with
// 404 and Get returns that as an error.
func (c *httpClient) Get(ctx context.Context, id, path string) (any, uint64, error) {
	url := "/tvars/" + id
	if path != "" {
		url += "/" + path
	}
	resp, err := c.do(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	var payload struct {
		Value   any    `json:"value"`
		Version uint64 `json:"version"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, 0, err
	}
	return payload.Value, payload.Version, nil
}

func (c *httpClient) Set(ctx context.Context, id string, value any) error {
	resp, err := c.do(ctx, http.MethodPut, "/tvars/"+id, value)
	if err != nil {
		return err
	}
	return resp.Body.Close()
}

func (c *httpClient) Patch(ctx context.Context, id, path string, value any) error {
	resp, err := c.do(ctx, http.MethodPatch, "/tvars/"+id+"/"+path, value)
	if err != nil {
		return err
	}
	return resp.Body.Close()
}

func (c *httpClient) Close() error { return nil }
