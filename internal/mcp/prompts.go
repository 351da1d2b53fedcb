package mcp

import (
	"context"
	"fmt"

	mcplib "github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerPrompts() {
	// research: walks an agent through plan, approval, execute.
	s.mcpServer.AddPrompt(
		mcplib.NewPrompt("research",
			mcplib.WithPromptDescription("Research a question against the indexed documents, with a plan approval step"),
			mcplib.WithArgument("task",
				mcplib.ArgumentDescription("The research question"),
				mcplib.RequiredArgument(),
			),
		),
		s.handleResearchPrompt,
	)
}

func (s *Server) handleResearchPrompt(_ context.Context, request mcplib.GetPromptRequest) (*mcplib.GetPromptResult, error) {
	task := request.Params.Arguments["task"]
	if task == "" {
		return nil, fmt.Errorf("task argument is required")
	}

	return &mcplib.GetPromptResult{
		Description: "Research workflow with plan approval",
		Messages: []mcplib.PromptMessage{
			{
				Role: mcplib.RoleUser,
				Content: mcplib.TextContent{
					Type: "text",
					Text: fmt.Sprintf(`Research this task: %s

1. CALL research_plan with the task above. Keep the returned session_id.

2. SHOW the numbered plan to me and ask whether to proceed.
   If I ask for changes, call research_plan again with a reworded task and no session_id.

3. After I approve, CALL research_execute with the session_id.

4. PRESENT the final report. Keep its [Source: <doc>, page: <n>] citations intact.

If a call fails, read session_id from the error and call research_execute again.
Completed stages are not repeated.`, task),
				},
			},
		},
	}, nil
}
