package server

import (
	"context"
	"net/http"
	"strconv"

	"github.com/danielgtaylor/huma/v2"

	"aicompass/internal/catalog"
	"aicompass/internal/domain"
	"aicompass/internal/engine"
)

func registerCatalog(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "getCatalog",
		Method:      http.MethodGet,
		Path:        "/catalog",
		Summary:     "Benchmark catalog",
		Tags:        []string{"catalog"},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body *catalog.Benchmark `json:"body"`
	}, error) {
		return &struct {
			Body *catalog.Benchmark `json:"body"`
		}{Body: e.Catalog}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "getQualification",
		Method:      http.MethodGet,
		Path:        "/catalog/qualification",
		Summary:     "Qualification questionnaire",
		Tags:        []string{"catalog"},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body QualificationResponse `json:"body"`
	}, error) {
		questions := e.Catalog.Qualification
		if questions == nil {
			questions = []catalog.QualificationQuestion{}
		}
		return &struct {
			Body QualificationResponse `json:"body"`
		}{Body: QualificationResponse{Questions: questions}}, nil
	})
}

func registerAssessments(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "createAssessment",
		Method:        http.MethodPost,
		Path:          "/assessments",
		Summary:       "Create assessment",
		Tags:          []string{"assessments"},
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Body CreateAssessmentRequest `json:"body"`
	}) (*struct {
		Body CreatedAssessmentResponse `json:"body"`
	}, error) {
		ownerID, herr := ownerIDFromContext(ctx)
		if herr != nil {
			return nil, herr
		}
		a, err := e.CreateAssessment(ctx, engine.CreateOptions{
			OwnerID:         ownerID,
			CompanyName:     input.Body.CompanyName,
			CompanyIndustry: stringOrEmpty(input.Body.CompanyIndustry),
			CompanySize:     stringOrEmpty(input.Body.CompanySize),
			InviteDays:      input.Body.InviteDays,
			Qualification:   toAnswers(input.Body.Qualification),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CreatedAssessmentResponse `json:"body"`
		}{Body: CreatedAssessmentResponse{
			ID:              a.ID,
			InviteToken:     a.InviteToken,
			InviteExpiresAt: a.InviteExpiresAt,
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "listAssessments",
		Method:      http.MethodGet,
		Path:        "/assessments",
		Summary:     "List assessments",
		Tags:        []string{"assessments"},
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body struct {
			Items []AssessmentSummaryResponse `json:"items"`
		} `json:"body"`
	}, error) {
		ownerID, herr := ownerIDFromContext(ctx)
		if herr != nil {
			return nil, herr
		}
		items, err := e.ListAssessments(ctx, ownerID)
		if err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				Items []AssessmentSummaryResponse `json:"items"`
			} `json:"body"`
		}{}
		out.Body.Items = mapAssessments(items)
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "getAssessment",
		Method:      http.MethodGet,
		Path:        "/assessments/{id}",
		Summary:     "Get assessment",
		Tags:        []string{"assessments"},
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body AssessmentResponse `json:"body"`
	}, error) {
		ownerID, herr := ownerIDFromContext(ctx)
		if herr != nil {
			return nil, herr
		}
		a, err := e.GetAssessment(ctx, ownerID, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AssessmentResponse `json:"body"`
		}{Body: assessmentResponse(a)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "updateAssessment",
		Method:      http.MethodPatch,
		Path:        "/assessments/{id}",
		Summary:     "Update assessment",
		Tags:        []string{"assessments"},
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ID   string                  `path:"id"`
		Body UpdateAssessmentRequest `json:"body"`
	}) (*struct {
		Body AssessmentResponse `json:"body"`
	}, error) {
		ownerID, herr := ownerIDFromContext(ctx)
		if herr != nil {
			return nil, herr
		}
		a, err := e.UpdateAssessment(ctx, engine.UpdateOptions{
			ID:              input.ID,
			OwnerID:         ownerID,
			Status:          input.Body.Status,
			InviteDays:      input.Body.InviteDays,
			CompanyName:     input.Body.CompanyName,
			CompanyIndustry: input.Body.CompanyIndustry,
			CompanySize:     input.Body.CompanySize,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AssessmentResponse `json:"body"`
		}{Body: assessmentResponse(a)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "getAssessmentResults",
		Method:      http.MethodGet,
		Path:        "/assessments/{id}/results",
		Summary:     "Score an assessment",
		Tags:        []string{"assessments"},
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body domain.ScoreSummary `json:"body"`
	}, error) {
		ownerID, herr := ownerIDFromContext(ctx)
		if herr != nil {
			return nil, herr
		}
		summary, err := e.Results(ctx, ownerID, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ScoreSummary `json:"body"`
		}{Body: summary}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "listAssessmentEvents",
		Method:      http.MethodGet,
		Path:        "/assessments/{id}/events",
		Summary:     "List assessment events",
		Tags:        []string{"assessments"},
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID     string `path:"id"`
		Limit  int    `query:"limit"`
		Cursor string `query:"cursor"`
	}) (*struct {
		Body paginatedEvents `json:"body"`
	}, error) {
		ownerID, herr := ownerIDFromContext(ctx)
		if herr != nil {
			return nil, herr
		}
		cursor, herr := parseCursor(input.Cursor)
		if herr != nil {
			return nil, herr
		}
		limit := normalizeLimit(input.Limit)
		items, err := e.ListEvents(ctx, ownerID, input.ID, limit+1, cursor)
		if err != nil {
			return nil, handleError(err)
		}
		next := ""
		if len(items) > limit {
			items = items[:limit]
			next = strconv.FormatInt(items[len(items)-1].ID, 10)
		}
		out := make([]EventResponse, 0, len(items))
		for _, ev := range items {
			out = append(out, eventResponse(ev))
		}
		return &struct {
			Body paginatedEvents `json:"body"`
		}{Body: paginatedEvents{Items: out, NextCursor: next}}, nil
	})
}

func registerInvite(api huma.API, e engine.Engine) {
	inviteErrors := []int{http.StatusForbidden, http.StatusNotFound}
	writeErrors := []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusConflict}

	huma.Register(api, huma.Operation{
		OperationID: "getInvite",
		Method:      http.MethodGet,
		Path:        "/invite/{token}",
		Summary:     "Open an invite",
		Tags:        []string{"invite"},
		Errors:      inviteErrors,
	}, func(ctx context.Context, input *struct {
		Token string `path:"token"`
	}) (*struct {
		Body domain.InviteSnapshot `json:"body"`
	}, error) {
		snap, err := e.GetInvite(ctx, input.Token)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.InviteSnapshot `json:"body"`
		}{Body: inviteResponse(snap)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "updateInvite",
		Method:      http.MethodPatch,
		Path:        "/invite/{token}",
		Summary:     "Save respondent progress",
		Tags:        []string{"invite"},
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		Token string              `path:"token"`
		Body  UpdateInviteRequest `json:"body"`
	}) (*struct {
		Body domain.InviteSnapshot `json:"body"`
	}, error) {
		snap, err := e.PatchInvite(ctx, input.Token, engine.InvitePatch{
			Status:          input.Body.Status,
			CompanyName:     input.Body.CompanyName,
			CompanyIndustry: input.Body.CompanyIndustry,
			CompanySize:     input.Body.CompanySize,
			ExecProfile:     input.Body.ExecProfile,
			Selections:      input.Body.Selections,
			Scores:          input.Body.Scores,
			Progress:        input.Body.Progress,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.InviteSnapshot `json:"body"`
		}{Body: inviteResponse(snap)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "qualifyInvite",
		Method:      http.MethodPost,
		Path:        "/invite/{token}/qualify",
		Summary:     "Resolve selections from qualification answers",
		Tags:        []string{"invite"},
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		Token string         `path:"token"`
		Body  QualifyRequest `json:"body"`
	}) (*struct {
		Body domain.InviteSnapshot `json:"body"`
	}, error) {
		snap, err := e.Qualify(ctx, input.Token, toAnswers(input.Body.Answers))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.InviteSnapshot `json:"body"`
		}{Body: inviteResponse(snap)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "recordResponse",
		Method:      http.MethodPost,
		Path:        "/invite/{token}/responses",
		Summary:     "Record one answer",
		Tags:        []string{"invite"},
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		Token string                `path:"token"`
		Body  RecordResponseRequest `json:"body"`
	}) (*struct {
		Body domain.InviteSnapshot `json:"body"`
	}, error) {
		snap, err := e.RecordResponse(ctx, input.Token, engine.ResponseInput{
			MetricID:      input.Body.MetricID,
			QuestionIndex: input.Body.QuestionIndex,
			Value:         input.Body.Value,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.InviteSnapshot `json:"body"`
		}{Body: inviteResponse(snap)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "completeMetric",
		Method:      http.MethodPost,
		Path:        "/invite/{token}/metrics/{metric_id}/complete",
		Summary:     "Mark a metric complete",
		Tags:        []string{"invite"},
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		Token    string `path:"token"`
		MetricID string `path:"metric_id"`
	}) (*struct {
		Body domain.InviteSnapshot `json:"body"`
	}, error) {
		snap, err := e.CompleteMetric(ctx, input.Token, input.MetricID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.InviteSnapshot `json:"body"`
		}{Body: inviteResponse(snap)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "getInviteResults",
		Method:      http.MethodGet,
		Path:        "/invite/{token}/results",
		Summary:     "Score the invite's assessment",
		Tags:        []string{"invite"},
		Errors:      inviteErrors,
	}, func(ctx context.Context, input *struct {
		Token string `path:"token"`
	}) (*struct {
		Body domain.ScoreSummary `json:"body"`
	}, error) {
		summary, err := e.InviteResults(ctx, input.Token)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ScoreSummary `json:"body"`
		}{Body: summary}, nil
	})
}
