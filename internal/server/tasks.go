package server

import (
	"context"
	"encoding/json"
	"net/http"
	"path"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"

	"blinkworks/internal/domain"
	"blinkworks/internal/engine"
	"blinkworks/internal/overview"
)

type taskPath struct {
	TaskID string `path:"task_id"`
}

type taskBody struct {
	Body TaskResponse `json:"body"`
}

var mutationErrors = []int{
	http.StatusBadRequest,
	http.StatusForbidden,
	http.StatusNotFound,
	http.StatusConflict,
	http.StatusInternalServerError,
}

func withTask(e engine.Engine, t domain.Task, err error) (*taskBody, error) {
	if err != nil {
		return nil, handleError(err)
	}
	return &taskBody{Body: taskResponse(t, now(e))}, nil
}

func registerTasks(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-task",
		Method:        http.MethodPost,
		Path:          "/tasks",
		Summary:       "Create task",
		DefaultStatus: http.StatusCreated,
		Errors:        mutationErrors,
	}, func(ctx context.Context, input *struct {
		Body CreateTaskRequest `json:"body"`
	}) (*taskBody, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.CreateTask(ctx, engine.CreateTaskInput{
			ActorID:      actorID,
			Type:         domain.TaskType(input.Body.Type),
			Priority:     domain.Priority(input.Body.Priority),
			Title:        input.Body.Title,
			Description:  input.Body.Description,
			BrandID:      input.Body.BrandID,
			Requirements: input.Body.Requirements,
			Deadline:     input.Body.Deadline,
			Draft:        input.Body.Draft,
		})
		return withTask(e, t, err)
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/tasks",
		Summary:     "List visible tasks",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Status      string `query:"status" enum:"DRAFT,SUBMITTED,INFO_REQUESTED,IN_REVIEW,IN_PROGRESS,READY_FOR_REVIEW,REVISION_REQUESTED,APPROVED,COMPLETED,CANCELLED"`
		OwnerID     string `query:"owner_id"`
		AssigneeID  string `query:"assignee_id"`
		Marketplace bool   `query:"marketplace"`
		Limit       int    `query:"limit" default:"50"`
	}) (*struct {
		Body paginatedTasks `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListTasks(ctx, engine.ListTasksInput{
			ActorID:     actorID,
			OwnerID:     input.OwnerID,
			AssigneeID:  input.AssigneeID,
			Marketplace: input.Marketplace,
			Status:      input.Status,
			Limit:       normalizeLimit(input.Limit),
		})
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedTasks{Items: make([]TaskResponse, 0, len(items))}
		for _, t := range items {
			resp.Items = append(resp.Items, taskResponse(t, now(e)))
		}
		return &struct {
			Body paginatedTasks `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-task",
		Method:      http.MethodGet,
		Path:        "/tasks/{task_id}",
		Summary:     "Get task",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *taskPath) (*taskBody, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.GetTask(ctx, input.TaskID, actorID)
		return withTask(e, t, err)
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-task",
		Method:        http.MethodDelete,
		Path:          "/tasks/{task_id}",
		Summary:       "Delete an untouched task",
		DefaultStatus: http.StatusNoContent,
		Errors:        mutationErrors,
	}, func(ctx context.Context, input *taskPath) (*struct{}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteTask(ctx, input.TaskID, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "submit-draft",
		Method:      http.MethodPost,
		Path:        "/tasks/{task_id}/submit",
		Summary:     "Submit a draft brief",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *taskPath) (*taskBody, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.SubmitDraft(ctx, input.TaskID, actorID)
		return withTask(e, t, err)
	})

	huma.Register(api, huma.Operation{
		OperationID: "send-to-marketplace",
		Method:      http.MethodPost,
		Path:        "/tasks/{task_id}/marketplace",
		Summary:     "Publish task to the marketplace",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		TaskID string            `path:"task_id"`
		Body   AdminNotesRequest `json:"body" required:"false"`
	}) (*taskBody, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.SendToMarketplace(ctx, input.TaskID, actorID, input.Body.AdminNotes)
		return withTask(e, t, err)
	})

	huma.Register(api, huma.Operation{
		OperationID: "assign-designer",
		Method:      http.MethodPost,
		Path:        "/tasks/{task_id}/assign",
		Summary:     "Assign a designer directly",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		TaskID string                `path:"task_id"`
		Body   AssignDesignerRequest `json:"body"`
	}) (*taskBody, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.AssignDesigner(ctx, input.TaskID, actorID, strings.TrimSpace(input.Body.DesignerID), input.Body.AdminNotes)
		return withTask(e, t, err)
	})

	huma.Register(api, huma.Operation{
		OperationID: "request-info",
		Method:      http.MethodPost,
		Path:        "/tasks/{task_id}/request-info",
		Summary:     "Send the brief back to the client",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		TaskID string          `path:"task_id"`
		Body   FeedbackRequest `json:"body"`
	}) (*taskBody, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.RequestInfo(ctx, input.TaskID, actorID, input.Body.Feedback)
		return withTask(e, t, err)
	})

	huma.Register(api, huma.Operation{
		OperationID: "resubmit-task",
		Method:      http.MethodPost,
		Path:        "/tasks/{task_id}/resubmit",
		Summary:     "Answer an information request",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		TaskID string          `path:"task_id"`
		Body   ResubmitRequest `json:"body" required:"false"`
	}) (*taskBody, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.Resubmit(ctx, engine.ResubmitInput{
			TaskID:       input.TaskID,
			ActorID:      actorID,
			Description:  input.Body.Description,
			Requirements: input.Body.Requirements,
		})
		return withTask(e, t, err)
	})

	huma.Register(api, huma.Operation{
		OperationID: "claim-task",
		Method:      http.MethodPost,
		Path:        "/tasks/{task_id}/claim",
		Summary:     "Claim a marketplace task",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *taskPath) (*taskBody, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.Claim(ctx, input.TaskID, actorID)
		return withTask(e, t, err)
	})

	huma.Register(api, huma.Operation{
		OperationID: "approve-work",
		Method:      http.MethodPost,
		Path:        "/tasks/{task_id}/approve",
		Summary:     "Admin sign-off on a submitted delivery",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *taskPath) (*taskBody, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.ApproveWork(ctx, input.TaskID, actorID)
		return withTask(e, t, err)
	})

	huma.Register(api, huma.Operation{
		OperationID: "cancel-task",
		Method:      http.MethodPost,
		Path:        "/tasks/{task_id}/cancel",
		Summary:     "Cancel task",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		TaskID string            `path:"task_id"`
		Body   CancelTaskRequest `json:"body" required:"false"`
	}) (*taskBody, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.CancelTask(ctx, input.TaskID, actorID, input.Body.Reason)
		return withTask(e, t, err)
	})
}

func registerDeliveries(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "add-delivery-link",
		Method:      http.MethodPost,
		Path:        "/tasks/{task_id}/deliveries/links",
		Summary:     "Add a link to the delivery",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		TaskID string         `path:"task_id"`
		Body   AddLinkRequest `json:"body"`
	}) (*taskBody, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.AddDeliveryLink(ctx, engine.AddLinkInput{
			TaskID:      input.TaskID,
			ActorID:     actorID,
			Name:        input.Body.Name,
			URL:         input.Body.URL,
			Description: input.Body.Description,
		})
		return withTask(e, t, err)
	})

	huma.Register(api, huma.Operation{
		OperationID: "remove-delivery",
		Method:      http.MethodDelete,
		Path:        "/tasks/{task_id}/deliveries/{delivery_id}",
		Summary:     "Remove a file or link",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		TaskID     string `path:"task_id"`
		DeliveryID string `path:"delivery_id"`
	}) (*taskBody, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.RemoveDelivery(ctx, input.TaskID, input.DeliveryID, actorID)
		return withTask(e, t, err)
	})

	huma.Register(api, huma.Operation{
		OperationID: "submit-delivery",
		Method:      http.MethodPost,
		Path:        "/tasks/{task_id}/deliveries/submit",
		Summary:     "Submit the delivery for review",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		TaskID string                `path:"task_id"`
		Body   SubmitDeliveryRequest `json:"body" required:"false"`
	}) (*taskBody, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.SubmitDelivery(ctx, input.TaskID, actorID, input.Body.Notes)
		return withTask(e, t, err)
	})

	huma.Register(api, huma.Operation{
		OperationID: "review-delivery",
		Method:      http.MethodPost,
		Path:        "/tasks/{task_id}/deliveries/review",
		Summary:     "Approve, reject or request a revision",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		TaskID string                `path:"task_id"`
		Body   ReviewDeliveryRequest `json:"body"`
	}) (*taskBody, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.ReviewDelivery(ctx, engine.ReviewInput{
			TaskID:   input.TaskID,
			ActorID:  actorID,
			Decision: domain.DeliveryStatus(input.Body.Decision),
			Feedback: input.Body.Feedback,
		})
		return withTask(e, t, err)
	})
}

func isUpload(r *http.Request) bool {
	return r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/deliveries/files")
}

// uploadHandler streams the raw request body into the blob store. The file
// name and description come from the query string.
func uploadHandler(e engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actorID, authErr := actorIDFromContext(r.Context())
		if authErr != nil {
			respondStatusError(w, authErr)
			return
		}
		name := r.URL.Query().Get("name")
		if name == "" {
			name = path.Base(r.Header.Get("X-File-Name"))
		}
		size := r.ContentLength
		if size < 0 {
			size = 0
		}
		t, err := e.AddDeliveryFile(r.Context(), engine.AddFileInput{
			TaskID:      chi.URLParam(r, "task_id"),
			ActorID:     actorID,
			Name:        name,
			ContentType: r.Header.Get("Content-Type"),
			Description: r.URL.Query().Get("description"),
			Size:        size,
			Body:        r.Body,
		})
		if err != nil {
			respondStatusError(w, handleError(err))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(taskResponse(t, now(e)))
	}
}

func registerOverview(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "designer-workload",
		Method:      http.MethodGet,
		Path:        "/overview/designers",
		Summary:     "Designer workload",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []overview.DesignerWorkload `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		rows, err := e.DesignerWorkload(ctx, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []overview.DesignerWorkload `json:"body"`
		}{Body: nonNilSlice(rows)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "client-overview",
		Method:      http.MethodGet,
		Path:        "/overview/clients",
		Summary:     "Client demand",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []overview.ClientOverview `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		rows, err := e.ClientOverview(ctx, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []overview.ClientOverview `json:"body"`
		}{Body: nonNilSlice(rows)}, nil
	})
}

func registerUsers(api huma.API, e engine.Engine) {
	createUser := func(ctx context.Context, actorID string, body CreateUserRequest) (*struct {
		Body domain.User `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		u, err := e.CreateUser(ctx, engine.CreateUserInput{
			ActorID: actorID,
			ID:      strings.TrimSpace(body.ID),
			Role:    domain.Role(body.Role),
			Name:    body.Name,
			Email:   body.Email,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.User `json:"body"`
		}{Body: u}, nil
	}

	huma.Register(api, huma.Operation{
		OperationID:   "bootstrap-admin",
		Method:        http.MethodPost,
		Path:          "/users/bootstrap",
		Summary:       "Create the first admin on an empty platform",
		DefaultStatus: http.StatusCreated,
		Errors:        mutationErrors,
	}, func(ctx context.Context, input *struct {
		Body CreateUserRequest `json:"body"`
	}) (*struct {
		Body domain.User `json:"body"`
	}, error) {
		return createUser(ctx, "", input.Body)
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-user",
		Method:        http.MethodPost,
		Path:          "/users",
		Summary:       "Create user",
		DefaultStatus: http.StatusCreated,
		Errors:        mutationErrors,
	}, func(ctx context.Context, input *struct {
		Body CreateUserRequest `json:"body"`
	}) (*struct {
		Body domain.User `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		return createUser(ctx, actorID, input.Body)
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-users",
		Method:      http.MethodGet,
		Path:        "/users",
		Summary:     "List users",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Role string `query:"role" enum:"client,designer,admin"`
	}) (*struct {
		Body []domain.User `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		users, err := e.ListUsers(ctx, actorID, domain.Role(input.Role))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.User `json:"body"`
		}{Body: nonNilSlice(users)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-api-key",
		Method:        http.MethodPost,
		Path:          "/api-keys",
		Summary:       "Mint an API key",
		DefaultStatus: http.StatusCreated,
		Errors:        mutationErrors,
	}, func(ctx context.Context, input *struct {
		Body CreateAPIKeyRequest `json:"body" required:"false"`
	}) (*struct {
		Body APIKeyResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		raw, key, err := e.CreateAPIKey(ctx, strings.TrimSpace(input.Body.UserID), input.Body.Name, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body APIKeyResponse `json:"body"`
		}{Body: apiKeyResponse(key, raw)}, nil
	})
}
