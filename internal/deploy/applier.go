package deploy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/vaporform/meshgate/internal/manifest"
)

// Applier pushes a generated artifact to the control plane that realizes it.
type Applier interface {
	Apply(ctx context.Context, art *manifest.Artifact) error
}

// ControlPlaneApplier applies artifacts over HTTP: one request per document,
// in document order, failing fast so a partial apply surfaces as an error.
// Namespace-labeling steps run after all documents succeed.
type ControlPlaneApplier struct {
	baseURL string
	client  *http.Client
}

// NewControlPlaneApplier returns an applier targeting the control-plane
// endpoint at baseURL.
func NewControlPlaneApplier(baseURL string, timeout time.Duration) *ControlPlaneApplier {
	return &ControlPlaneApplier{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// Apply sends every document, then every namespace label. The first failure
// aborts the rest; the caller decides what the partial state means.
func (a *ControlPlaneApplier) Apply(ctx context.Context, art *manifest.Artifact) error {
	for _, doc := range art.Documents {
		target := fmt.Sprintf("%s/v1/backends/%s/manifests/%s",
			a.baseURL, url.PathEscape(art.Backend), url.PathEscape(doc.Name))

		req, err := http.NewRequestWithContext(ctx, http.MethodPut, target, bytes.NewReader(doc.Data))
		if err != nil {
			return fmt.Errorf("build apply request for %s: %w", doc.Name, err)
		}
		req.Header.Set("Content-Type", doc.ContentType)

		if err := a.do(req, doc.Name); err != nil {
			return err
		}
	}

	for _, label := range art.NamespaceLabels {
		body, err := json.Marshal(map[string]string{label.Key: label.Value})
		if err != nil {
			return fmt.Errorf("marshal labels for namespace %s: %w", label.Namespace, err)
		}
		target := fmt.Sprintf("%s/v1/namespaces/%s/labels", a.baseURL, url.PathEscape(label.Namespace))

		req, err := http.NewRequestWithContext(ctx, http.MethodPatch, target, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("build label request for %s: %w", label.Namespace, err)
		}
		req.Header.Set("Content-Type", "application/json")

		if err := a.do(req, "labels/"+label.Namespace); err != nil {
			return err
		}
	}

	return nil
}

func (a *ControlPlaneApplier) do(req *http.Request, step string) error {
	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("apply %s: %w", step, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("apply %s: control plane returned %d: %s", step, resp.StatusCode, bytes.TrimSpace(detail))
	}
	return nil
}

// LogApplier logs artifacts instead of applying them. Used when no
// control-plane URL is configured, so a development instance still walks the
// full deploy lifecycle.
type LogApplier struct{}

// Apply logs each document and label step and reports success.
func (LogApplier) Apply(_ context.Context, art *manifest.Artifact) error {
	for _, doc := range art.Documents {
		log.Printf("Deploy (dry-run): would apply %s document %s (%d bytes)", art.Backend, doc.Name, len(doc.Data))
	}
	for _, label := range art.NamespaceLabels {
		log.Printf("Deploy (dry-run): would label namespace %s with %s=%s", label.Namespace, label.Key, label.Value)
	}
	return nil
}
