package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"issueline/internal/domain"
	"issueline/internal/engine"
	"issueline/internal/tool"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   *engine.Engine
	BasePath string
	Logger   *slog.Logger
	// Actor is recorded on events when a request carries no X-Actor header.
	Actor string
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"dependency_cycle"`
	Message string         `json:"message" example:"adding b -> a would create a cycle"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the issue store.
func New(cfg Config) (http.Handler, error) {
	if cfg.Engine == nil {
		return nil, errors.New("server: engine is required")
	}
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity {
			// request schema violations are reported as 400 validation_error
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			msgs := make([]string, 0, len(errs))
			for _, err := range errs {
				msgs = append(msgs, err.Error())
			}
			details = map[string]any{"errors": msgs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(requestLogger(logger))
	hcfg := huma.DefaultConfig("Issueline API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	h := &handlers{engine: cfg.Engine, actor: cfg.Actor, logger: logger}
	registerDocs(router, basePath)
	registerHealth(group, h)
	registerIssues(group, h)
	registerDependencies(group, h)
	registerQueues(group, h)
	registerTool(group, h)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

type handlers struct {
	engine *engine.Engine
	actor  string
	logger *slog.Logger
}

func (h *handlers) actorFor(header string) string {
	if header != "" {
		return header
	}
	return h.actor
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	code := tool.ErrorCode(err)
	msg := err.Error()
	var (
		ve domain.ValidationError
		nf domain.NotFoundError
		ce domain.CycleError
	)
	switch {
	case errors.As(err, &ve):
		return newAPIError(http.StatusBadRequest, code, msg, map[string]any{"field": ve.Field})
	case errors.As(err, &nf):
		kind := nf.Kind
		if kind == "" {
			kind = "issue"
		}
		return newAPIError(http.StatusNotFound, code, msg, map[string]any{"kind": kind, "id": nf.ID})
	case errors.As(err, &ce):
		return newAPIError(http.StatusConflict, code, msg, map[string]any{"path": ce.Path})
	case errors.Is(err, domain.ErrDuplicateIssue):
		return newAPIError(http.StatusConflict, code, msg, nil)
	case errors.Is(err, engine.ErrLocked):
		return newAPIError(http.StatusServiceUnavailable, code, msg, nil)
	case errors.Is(err, domain.ErrCorruption):
		return newAPIError(http.StatusInternalServerError, code, msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "validation_error"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusServiceUnavailable:
		return "store_locked"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get(path.Join(basePath, "docs"), func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			ensureDefaultErrorResponses(oas)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil {
		return
	}
	for _, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			op.Responses["default"] = &huma.Response{
				Description: "Error",
				Content: map[string]*huma.MediaType{
					"application/json": {
						Schema: &huma.Schema{Ref: "#/components/schemas/ApiError"},
					},
				},
			}
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Issueline API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API, h *handlers) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body HealthResponse `json:"body"`
	}, error) {
		return &struct {
			Body HealthResponse `json:"body"`
		}{Body: HealthResponse{Status: "ok", Sequence: h.engine.Sequence()}}, nil
	})
}

func registerIssues(api huma.API, h *handlers) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-issue",
		Method:        http.MethodPost,
		Path:          "/issues",
		Summary:       "Create issue",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict, http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *struct {
		Actor string             `header:"X-Actor"`
		Body  CreateIssueRequest `json:"body"`
	}) (*struct {
		Body domain.Issue `json:"body"`
	}, error) {
		opts := engine.IssueCreateOptions{
			Title:          input.Body.Title,
			Description:    input.Body.Description,
			IssueType:      input.Body.IssueType,
			Assignee:       input.Body.Assignee,
			ParentID:       input.Body.ParentID,
			DiscoveredFrom: input.Body.DiscoveredFrom,
			Metadata:       input.Body.Metadata,
			ActorID:        h.actorFor(input.Actor),
		}
		if input.Body.Priority != nil {
			p := domain.Priority(*input.Body.Priority)
			opts.Priority = &p
		}
		issue, err := h.engine.CreateIssue(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Issue `json:"body"`
		}{Body: issue}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-issues",
		Method:      http.MethodGet,
		Path:        "/issues",
		Summary:     "List issues",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		FilterQuery
		Status string `query:"status" enum:"open,closed"`
	}) (*struct {
		Body IssueListResponse `json:"body"`
	}, error) {
		filter, err := input.filter()
		if err != nil {
			return nil, handleError(err)
		}
		filter.Status = domain.Status(input.Status)
		issues, err := h.engine.ListIssues(ctx, filter)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body IssueListResponse `json:"body"`
		}{Body: IssueListResponse{Issues: issueList(issues), Count: len(issues)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-issue",
		Method:      http.MethodGet,
		Path:        "/issues/{id}",
		Summary:     "Get issue",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body domain.Issue `json:"body"`
	}, error) {
		issue, err := h.engine.GetIssue(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Issue `json:"body"`
		}{Body: issue}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-issue",
		Method:      http.MethodPatch,
		Path:        "/issues/{id}",
		Summary:     "Update issue fields",
		Description: "Accepts a partial field map. Immutable fields are rejected; a null metadata value removes that key.",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *struct {
		ID    string         `path:"id"`
		Actor string         `header:"X-Actor"`
		Body  map[string]any `json:"body"`
	}) (*struct {
		Body domain.Issue `json:"body"`
	}, error) {
		issue, err := h.engine.UpdateIssueFields(ctx, input.ID, input.Body, h.actorFor(input.Actor))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Issue `json:"body"`
		}{Body: issue}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "close-issue",
		Method:      http.MethodPost,
		Path:        "/issues/{id}/close",
		Summary:     "Close issue",
		Errors:      []int{http.StatusNotFound, http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *struct {
		ID    string             `path:"id"`
		Actor string             `header:"X-Actor"`
		Body  *CloseIssueRequest `json:"body,omitempty" required:"false"`
	}) (*struct {
		Body domain.Issue `json:"body"`
	}, error) {
		opts := engine.CloseOptions{ActorID: h.actorFor(input.Actor)}
		if input.Body != nil {
			opts.Reason = input.Body.Reason
		}
		issue, err := h.engine.CloseIssue(ctx, input.ID, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Issue `json:"body"`
		}{Body: issue}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-issue-events",
		Method:      http.MethodGet,
		Path:        "/issues/{id}/events",
		Summary:     "Issue history",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body EventListResponse `json:"body"`
	}, error) {
		evts, err := h.engine.IssueEvents(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body EventListResponse `json:"body"`
		}{Body: EventListResponse{Events: eventList(evts), Count: len(evts)}}, nil
	})
}

func registerDependencies(api huma.API, h *handlers) {
	huma.Register(api, huma.Operation{
		OperationID:   "add-dependency",
		Method:        http.MethodPost,
		Path:          "/dependencies",
		Summary:       "Add blocking dependency",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict, http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *struct {
		Actor string               `header:"X-Actor"`
		Body  AddDependencyRequest `json:"body"`
	}) (*struct {
		Body domain.Dependency `json:"body"`
	}, error) {
		dep, err := h.engine.AddDependency(ctx, input.Body.BlockedID, input.Body.BlockerID, h.actorFor(input.Actor))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Dependency `json:"body"`
		}{Body: dep}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-dependencies",
		Method:      http.MethodGet,
		Path:        "/issues/{id}/dependencies",
		Summary:     "Issues blocking this issue",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body DependenciesResponse `json:"body"`
	}, error) {
		issues, err := h.engine.Blockers(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body DependenciesResponse `json:"body"`
		}{Body: DependenciesResponse{Dependencies: issueList(issues), Count: len(issues)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-dependents",
		Method:      http.MethodGet,
		Path:        "/issues/{id}/dependents",
		Summary:     "Issues blocked by this issue",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body DependentsResponse `json:"body"`
	}, error) {
		issues, err := h.engine.Dependents(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body DependentsResponse `json:"body"`
		}{Body: DependentsResponse{Dependents: issueList(issues), Count: len(issues)}}, nil
	})
}

func registerQueues(api huma.API, h *handlers) {
	huma.Register(api, huma.Operation{
		OperationID: "list-ready",
		Method:      http.MethodGet,
		Path:        "/ready",
		Summary:     "Ready work queue",
		Description: "Open issues with no open blockers, ordered by priority then age.",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		FilterQuery
		Limit int `query:"limit" minimum:"0"`
	}) (*struct {
		Body ReadyResponse `json:"body"`
	}, error) {
		filter, err := input.filter()
		if err != nil {
			return nil, handleError(err)
		}
		issues, err := h.engine.GetReadyIssues(ctx, engine.ReadyOptions{Filter: filter, Limit: input.Limit})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ReadyResponse `json:"body"`
		}{Body: ReadyResponse{ReadyIssues: issueList(issues), Count: len(issues)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-blocked",
		Method:      http.MethodGet,
		Path:        "/blocked",
		Summary:     "Blocked issues with their open blockers",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body BlockedResponse `json:"body"`
	}, error) {
		entries, err := h.engine.GetBlockedIssues(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body BlockedResponse `json:"body"`
		}{Body: BlockedResponse{BlockedIssues: blockedList(entries), Count: len(entries)}}, nil
	})
}

func registerTool(api huma.API, h *handlers) {
	huma.Register(api, huma.Operation{
		OperationID: "execute-tool",
		Method:      http.MethodPost,
		Path:        "/tool",
		Summary:     "Run an issue_manager tool operation",
		Description: "Failures are reported in the result body with success=false.",
	}, func(ctx context.Context, input *struct {
		Actor string       `header:"X-Actor"`
		Body  tool.Request `json:"body"`
	}) (*struct {
		Body tool.Result `json:"body"`
	}, error) {
		t := tool.Tool{Store: h.engine, Actor: h.actorFor(input.Actor), Logger: h.logger}
		return &struct {
			Body tool.Result `json:"body"`
		}{Body: t.Execute(ctx, input.Body)}, nil
	})
}

// FilterQuery holds the equality filters shared by list endpoints. It must
// stay exported for huma to bind its query fields through embedding.
type FilterQuery struct {
	Assignee  string `query:"assignee"`
	IssueType string `query:"issue_type"`
	Priority  string `query:"priority" doc:"0-4 or a name such as high"`
	ParentID  string `query:"parent_id"`
}

func (q FilterQuery) filter() (domain.IssueFilter, error) {
	f := domain.IssueFilter{
		Assignee:  q.Assignee,
		IssueType: q.IssueType,
		ParentID:  q.ParentID,
	}
	if q.Priority != "" {
		p, err := domain.ParsePriority(q.Priority)
		if err != nil {
			return f, err
		}
		f.Priority = &p
	}
	return f, nil
}
