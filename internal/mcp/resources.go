package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/ashita-ai/kenkyu/internal/ctxutil"
	"github.com/ashita-ai/kenkyu/internal/model"
)

const sessionURIPrefix = "kenkyu://session/"

func (s *Server) registerResources() {
	// kenkyu://session/{id}: full persisted snapshot of one session.
	s.mcpServer.AddResourceTemplate(
		mcplib.NewResourceTemplate(
			sessionURIPrefix+"{id}",
			"Research Session",
			mcplib.WithTemplateDescription("Full snapshot of a research session: plan, findings, draft, report, and reasoning log"),
			mcplib.WithTemplateMIMEType("application/json"),
		),
		s.handleSessionResource,
	)
}

// parseSessionURI extracts the session ID from kenkyu://session/{id}.
func parseSessionURI(uri string) (string, error) {
	id, ok := strings.CutPrefix(uri, sessionURIPrefix)
	if !ok {
		return "", fmt.Errorf("mcp: invalid session URI %q: want %s{id}", uri, sessionURIPrefix)
	}
	if err := model.ValidateSessionID(id); err != nil {
		return "", fmt.Errorf("mcp: invalid session URI %q: %w", uri, err)
	}
	return id, nil
}

func (s *Server) handleSessionResource(ctx context.Context, request mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	uri := request.Params.URI
	id, err := parseSessionURI(uri)
	if err != nil {
		return nil, err
	}

	sess, err := s.engine.Session(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("mcp: read session %s: %w", id, err)
	}
	if !ctxutil.CanAccess(ctx, sess.Owner) {
		return nil, fmt.Errorf("mcp: read session %s: %w", id, model.ErrSessionNotFound)
	}

	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("mcp: marshal session: %w", err)
	}

	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
