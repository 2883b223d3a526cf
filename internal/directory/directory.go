// Package directory downloads the list of FSD servers published by the network.
package directory

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"

	"github.com/saviobatista/fsd-connector/internal/types"
)

// ErrNoServerListURLs is returned when the status file names no server list
var ErrNoServerListURLs = errors.New("no server list URLs found")

const (
	serverListKey  = "url1="
	serversSection = "!SERVERS:"
	voicePseudoRow = "AFVDATA"
)

// Client fetches the status file and the server list it points to
type Client struct {
	httpClient *http.Client
	pick       func(n int) int
}

// NewClient creates a Client. A nil httpClient uses a 30s timeout client.
func NewClient(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{httpClient: httpClient, pick: rand.IntN}
}

// Fetch reads the status file at statusURL, picks one of its server list
// URLs at random and returns the parsed server list
func (c *Client) Fetch(ctx context.Context, statusURL string) ([]types.ServerInfo, error) {
	body, err := c.get(ctx, statusURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch status file: %w", err)
	}
	defer body.Close()

	urls, err := ParseStatusFile(body)
	if err != nil {
		return nil, err
	}
	if len(urls) == 0 {
		return nil, ErrNoServerListURLs
	}

	listURL := urls[c.pick(len(urls))]
	list, err := c.get(ctx, listURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch server list: %w", err)
	}
	defer list.Close()

	return ParseServerList(list)
}

func (c *Client) get(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status %s from %s", resp.Status, url)
	}
	return resp.Body, nil
}

// ParseStatusFile returns every non-empty url1= entry in order
func ParseStatusFile(r io.Reader) ([]string, error) {
	var urls []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.HasPrefix(line, serverListKey) && len(line) > len(serverListKey) {
			urls = append(urls, line[len(serverListKey):])
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read status file: %w", err)
	}
	return urls, nil
}

// ParseServerList reads the !SERVERS: section of a server list.
// Comment lines start with ';'. Rows have the form name:address:location:description.
func ParseServerList(r io.Reader) ([]types.ServerInfo, error) {
	var servers []types.ServerInfo
	inServers := false

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" || strings.HasPrefix(strings.TrimSpace(line), ";") {
			continue
		}
		if strings.HasPrefix(line, serversSection) {
			inServers = true
			continue
		}
		if !inServers {
			continue
		}
		if strings.HasPrefix(line, "!") {
			break
		}

		fields := strings.Split(line, ":")
		if len(fields) < 4 || strings.TrimSpace(fields[0]) == voicePseudoRow {
			continue
		}
		servers = append(servers, types.ServerInfo{
			Name:        strings.TrimSpace(fields[0]),
			Address:     strings.TrimSpace(fields[1]),
			Location:    strings.TrimSpace(fields[2]),
			Description: strings.TrimSpace(fields[3]),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read server list: %w", err)
	}
	return servers, nil
}
