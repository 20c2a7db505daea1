// Copyright (C) 2025 Josh Simonot
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package datalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// EmonCMS posts values to the input/post endpoint as fulljson.
type EmonCMS struct {
	addr   string
	apiKey string
	client *http.Client
}

func NewEmonCMS(addr, apiKey string) *EmonCMS {
	return &EmonCMS{
		addr:   strings.TrimRight(addr, "/"),
		apiKey: apiKey,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (e *EmonCMS) Name() string { return "emoncms" }

func (e *EmonCMS) Send(ctx context.Context, node string, at time.Time, values map[string]float64) error {
	data, err := json.Marshal(values)
	if err != nil {
		return fmt.Errorf("json.Marshal: %w", err)
	}

	q := url.Values{}
	q.Set("node", node)
	q.Set("apikey", e.apiKey)
	q.Set("time", fmt.Sprint(at.Unix()))
	q.Set("fulljson", string(data))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.addr+"/input/post?"+q.Encode(), nil)
	if err != nil {
		return err
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("http.Get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("emoncms: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	return nil
}

func (e *EmonCMS) Close() {}
