package remote

import (
	"context"
	"encoding/base64"

	"github.com/vibefoundry/vibefoundry-sandbox/internal/sync"
)

// SyncAdapter narrows Client to the sync package's RemoteClient interface,
// decoding file payloads and reshaping the metadata pair/script listing
// into the sync package's plain types.
type SyncAdapter struct {
	client *Client
}

// NewSyncAdapter wraps client for use by a Synchronizer.
func NewSyncAdapter(client *Client) *SyncAdapter {
	return &SyncAdapter{client: client}
}

func (a *SyncAdapter) ListScripts(ctx context.Context) ([]sync.ScriptEntry, error) {
	entries, err := a.client.ListScripts(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]sync.ScriptEntry, len(entries))
	for i, e := range entries {
		out[i] = sync.ScriptEntry{Path: e.Path, ModifiedUnix: e.ModifiedUnix}
	}
	return out, nil
}

func (a *SyncAdapter) GetFile(ctx context.Context, relPath string) ([]byte, error) {
	fc, err := a.client.GetFile(ctx, relPath)
	if err != nil {
		return nil, err
	}
	if fc.Encoding == "base64" {
		return base64.StdEncoding.DecodeString(fc.Content)
	}
	return []byte(fc.Content), nil
}

func (a *SyncAdapter) PutFile(ctx context.Context, relPath string, content []byte) error {
	return a.client.PutFile(ctx, relPath, content)
}

func (a *SyncAdapter) PutMetadata(ctx context.Context, inputText, outputText string) error {
	return a.client.PutMetadata(ctx, Metadata{InputMetadata: inputText, OutputMetadata: outputText})
}

func (a *SyncAdapter) AppendKeepalive(ctx context.Context, line string) error {
	return a.client.AppendKeepalive(ctx, line)
}
