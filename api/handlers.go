package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"scribe/core"
	"scribe/docgen"
	"scribe/github"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

type docRequest struct {
	URL   string `json:"url" validate:"required,url"`
	Model string `json:"model"`
}

type repoRequest struct {
	Owner string `json:"owner" validate:"required"`
	Name  string `json:"name" validate:"required"`
	Model string `json:"model"`
}

type searchRequest struct {
	RepoID string `json:"repo_id" validate:"required"`
	Query  string `json:"query" validate:"required"`
	TopK   int    `json:"top_k" validate:"gte=0,lte=100"`
}

type chatRequest struct {
	RepoID  string `json:"repo_id" validate:"required"`
	Message string `json:"message" validate:"required"`
	Model   string `json:"model"`
	TopK    int    `json:"top_k" validate:"gte=0,lte=100"`
}

type chatSource struct {
	DocID string  `json:"doc_id"`
	Path  string  `json:"path"`
	Score float64 `json:"score"`
}

type chatResponse struct {
	Answer  string       `json:"answer"`
	Sources []chatSource `json:"sources"`
}

type acceptedResponse struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

type contentResponse struct {
	Content string `json:"content"`
}

// createDoc godoc
//
//	@Summary		Generate documentation for one file synchronously
//	@Tags			docs
//	@Accept			json
//	@Produce		json
//	@Param			request	body		docRequest	true	"GitHub blob URL and optional model"
//	@Success		200		{object}	contentResponse
//	@Failure		400		{object}	errorResponse
//	@Failure		404		{object}	errorResponse
//	@Security		BearerAuth
//	@Router			/api/docs [post]
func (a *API) createDoc(w http.ResponseWriter, r *http.Request) {
	var req docRequest
	if err := a.decodeJSONBody(w, r, &req); err != nil {
		writeError(w, a.logger, http.StatusBadRequest, err.Error(), nil)
		return
	}
	if err := a.validate.Struct(req); err != nil {
		writeError(w, a.logger, http.StatusBadRequest, "url is required and must be a valid URL", nil)
		return
	}

	model, err := core.ParseModel(req.Model)
	if err != nil {
		writeError(w, a.logger, http.StatusBadRequest, err.Error(), nil)
		return
	}

	markdown, _, err := a.generator.GenerateForFile(r.Context(), req.URL, model)
	if err != nil {
		switch {
		case errors.Is(err, github.ErrNotFound):
			writeError(w, a.logger, http.StatusNotFound, "file not found on GitHub", nil)
		case errors.Is(err, github.ErrInvalidURL):
			writeError(w, a.logger, http.StatusBadRequest, "url must be a GitHub blob URL", nil)
		default:
			writeError(w, a.logger, http.StatusInternalServerError, "documentation generation failed", err)
		}
		return
	}

	writeJSON(w, http.StatusOK, contentResponse{Content: markdown})
}

// createFileDoc godoc
//
//	@Summary		Start background documentation generation for one file
//	@Tags			docs
//	@Accept			json
//	@Produce		json
//	@Param			request	body		docRequest	true	"GitHub blob URL and optional model"
//	@Success		202		{object}	acceptedResponse
//	@Failure		400		{object}	errorResponse
//	@Failure		503		{object}	errorResponse
//	@Security		BearerAuth
//	@Router			/api/file-docs [post]
func (a *API) createFileDoc(w http.ResponseWriter, r *http.Request) {
	var req docRequest
	if err := a.decodeJSONBody(w, r, &req); err != nil {
		writeError(w, a.logger, http.StatusBadRequest, err.Error(), nil)
		return
	}
	if err := a.validate.Struct(req); err != nil {
		writeError(w, a.logger, http.StatusBadRequest, "url is required and must be a valid URL", nil)
		return
	}

	model, err := core.ParseModel(req.Model)
	if err != nil {
		writeError(w, a.logger, http.StatusBadRequest, err.Error(), nil)
		return
	}
	if _, err := github.ParseBlobURL(req.URL); err != nil {
		writeError(w, a.logger, http.StatusBadRequest, "url must be a GitHub blob URL", nil)
		return
	}

	doc := &core.Doc{
		ID:        uuid.NewString(),
		UserID:    requestUserID(r),
		GitHubURL: req.URL,
		Model:     model,
		Status:    core.DocStatusStarted,
	}
	if err := a.docStorage.CreateDoc(doc); err != nil {
		writeError(w, a.logger, http.StatusInternalServerError, "failed to create doc", err)
		return
	}

	if err := a.jobs.Enqueue(docgen.Job{DocID: doc.ID, URL: doc.GitHubURL, Model: doc.Model}); err != nil {
		// No worker will ever pick this record up; remove it so it
		// does not sit in STARTED forever.
		if delErr := a.docStorage.DeleteDoc(doc.ID); delErr != nil {
			a.logger.Warnw("Failed to remove doc after enqueue failure", "doc_id", doc.ID, "error", delErr)
		}
		if errors.Is(err, docgen.ErrQueueFull) {
			writeError(w, a.logger, http.StatusServiceUnavailable, "generation queue is full, try again later", nil)
			return
		}
		writeError(w, a.logger, http.StatusInternalServerError, "failed to queue generation", err)
		return
	}

	writeJSON(w, http.StatusAccepted, acceptedResponse{ID: doc.ID, Message: "documentation generation started"})
}

// getFileDoc godoc
//
//	@Summary	Fetch a documentation record by ID
//	@Tags		docs
//	@Produce	json
//	@Param		id	path		string	true	"Doc ID"
//	@Success	200	{object}	core.Doc
//	@Failure	404	{object}	errorResponse
//	@Security	BearerAuth
//	@Router		/api/file-docs/{id} [get]
func (a *API) getFileDoc(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := validateUUID(id); err != nil {
		writeError(w, a.logger, http.StatusBadRequest, err.Error(), nil)
		return
	}

	doc, err := a.docStorage.GetDoc(id)
	if err != nil {
		if errors.Is(err, core.ErrDocNotFound) {
			writeError(w, a.logger, http.StatusNotFound, "doc not found", nil)
			return
		}
		writeError(w, a.logger, http.StatusInternalServerError, "failed to fetch doc", err)
		return
	}

	writeJSON(w, http.StatusOK, doc)
}

// regenerateFileDoc godoc
//
//	@Summary	Regenerate documentation for an existing record
//	@Tags		docs
//	@Accept		json
//	@Produce	json
//	@Param		id		path		string		true	"Doc ID"
//	@Param		request	body		docRequest	false	"Optional model override"
//	@Success	202		{object}	acceptedResponse
//	@Failure	404		{object}	errorResponse
//	@Failure	503		{object}	errorResponse
//	@Security	BearerAuth
//	@Router		/api/file-docs/{id} [put]
func (a *API) regenerateFileDoc(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := validateUUID(id); err != nil {
		writeError(w, a.logger, http.StatusBadRequest, err.Error(), nil)
		return
	}

	doc, err := a.docStorage.GetDoc(id)
	if err != nil {
		if errors.Is(err, core.ErrDocNotFound) {
			writeError(w, a.logger, http.StatusNotFound, "doc not found", nil)
			return
		}
		writeError(w, a.logger, http.StatusInternalServerError, "failed to fetch doc", err)
		return
	}

	// An optional body may switch the model.
	if r.ContentLength > 0 {
		var req docRequest
		if err := a.decodeJSONBody(w, r, &req); err != nil {
			writeError(w, a.logger, http.StatusBadRequest, err.Error(), nil)
			return
		}
		if req.Model != "" {
			model, err := core.ParseModel(req.Model)
			if err != nil {
				writeError(w, a.logger, http.StatusBadRequest, err.Error(), nil)
				return
			}
			doc.Model = model
		}
	}

	prev := *doc
	doc.Status = core.DocStatusStarted
	doc.Markdown = ""
	doc.Error = ""
	if err := a.docStorage.UpdateDoc(id, doc); err != nil {
		writeError(w, a.logger, http.StatusInternalServerError, "failed to update doc", err)
		return
	}

	if err := a.jobs.Enqueue(docgen.Job{DocID: doc.ID, RepoID: doc.RepoID, URL: doc.GitHubURL, Model: doc.Model}); err != nil {
		// Put the record back the way it was; otherwise it is stuck
		// in STARTED with its previous markdown gone.
		if restoreErr := a.docStorage.UpdateDoc(id, &prev); restoreErr != nil {
			a.logger.Warnw("Failed to restore doc after enqueue failure", "doc_id", id, "error", restoreErr)
		}
		if errors.Is(err, docgen.ErrQueueFull) {
			writeError(w, a.logger, http.StatusServiceUnavailable, "generation queue is full, try again later", nil)
			return
		}
		writeError(w, a.logger, http.StatusInternalServerError, "failed to queue generation", err)
		return
	}

	writeJSON(w, http.StatusAccepted, acceptedResponse{ID: doc.ID, Message: "documentation regeneration started"})
}

// deleteFileDoc godoc
//
//	@Summary	Delete a documentation record
//	@Tags		docs
//	@Produce	json
//	@Param		id	path	string	true	"Doc ID"
//	@Success	204
//	@Failure	400	{object}	errorResponse
//	@Failure	404	{object}	errorResponse
//	@Security	BearerAuth
//	@Router		/api/file-docs/{id} [delete]
func (a *API) deleteFileDoc(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := validateUUID(id); err != nil {
		writeError(w, a.logger, http.StatusBadRequest, err.Error(), nil)
		return
	}

	doc, err := a.docStorage.GetDoc(id)
	if err != nil {
		if errors.Is(err, core.ErrDocNotFound) {
			writeError(w, a.logger, http.StatusNotFound, "doc not found", nil)
			return
		}
		writeError(w, a.logger, http.StatusInternalServerError, "failed to fetch doc", err)
		return
	}
	if doc.Status == core.DocStatusStarted {
		writeError(w, a.logger, http.StatusBadRequest, core.ErrDocInProgress.Error(), nil)
		return
	}

	if err := a.docStorage.DeleteDoc(id); err != nil {
		writeError(w, a.logger, http.StatusInternalServerError, "failed to delete doc", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// createRepo godoc
//
//	@Summary		Register a repository and generate docs for all its files
//	@Tags			repos
//	@Accept			json
//	@Produce		json
//	@Param			request	body		repoRequest	true	"Repository owner and name"
//	@Success		202		{object}	core.Repo
//	@Failure		400		{object}	errorResponse
//	@Failure		404		{object}	errorResponse
//	@Security		BearerAuth
//	@Router			/api/repos [post]
func (a *API) createRepo(w http.ResponseWriter, r *http.Request) {
	var req repoRequest
	if err := a.decodeJSONBody(w, r, &req); err != nil {
		writeError(w, a.logger, http.StatusBadRequest, err.Error(), nil)
		return
	}
	if err := a.validate.Struct(req); err != nil {
		writeError(w, a.logger, http.StatusBadRequest, "owner and name are required", nil)
		return
	}

	model, err := core.ParseModel(req.Model)
	if err != nil {
		writeError(w, a.logger, http.StatusBadRequest, err.Error(), nil)
		return
	}

	userID := requestUserID(r)
	repo, err := a.generator.RegisterRepo(r.Context(), userID, req.Owner, req.Name,
		func(string) string { return uuid.NewString() })
	if err != nil {
		if errors.Is(err, github.ErrNotFound) {
			writeError(w, a.logger, http.StatusNotFound, "repository not found on GitHub", nil)
			return
		}
		writeError(w, a.logger, http.StatusInternalServerError, "failed to register repository", err)
		return
	}
	repo.ID = uuid.NewString()

	// Create a doc record per file so status is queryable immediately.
	for _, node := range repo.Tree {
		blobURL := fmt.Sprintf("https://github.com/%s/%s/blob/%s/%s", repo.Owner, repo.Name, repo.DefaultBranch, node.Path)
		doc := &core.Doc{
			ID:        node.DocID,
			UserID:    userID,
			RepoID:    repo.ID,
			GitHubURL: blobURL,
			FilePath:  node.Path,
			Model:     model,
			Status:    core.DocStatusStarted,
		}
		if err := a.docStorage.CreateDoc(doc); err != nil {
			writeError(w, a.logger, http.StatusInternalServerError, "failed to create doc records", err)
			return
		}
	}

	if err := a.repoStorage.CreateRepo(repo); err != nil {
		writeError(w, a.logger, http.StatusInternalServerError, "failed to create repository", err)
		return
	}

	queued := 0
	for _, node := range repo.Tree {
		blobURL := fmt.Sprintf("https://github.com/%s/%s/blob/%s/%s", repo.Owner, repo.Name, repo.DefaultBranch, node.Path)
		job := docgen.Job{DocID: node.DocID, RepoID: repo.ID, URL: blobURL, Model: model}
		if err := a.jobs.Enqueue(job); err != nil {
			a.logger.Warnw("Failed to enqueue repo file", "repo_id", repo.ID, "path", node.Path, "error", err)
			continue
		}
		queued++
	}
	a.logger.Infow("Repository registered", "repo_id", repo.ID, "files", len(repo.Tree), "queued", queued)

	writeJSON(w, http.StatusAccepted, repo)
}

// listRepos godoc
//
//	@Summary	List the caller's registered repositories
//	@Tags		repos
//	@Produce	json
//	@Success	200	{array}	core.Repo
//	@Security	BearerAuth
//	@Router		/api/repos [get]
func (a *API) listRepos(w http.ResponseWriter, r *http.Request) {
	repos, err := a.repoStorage.GetReposByUser(requestUserID(r))
	if err != nil {
		writeError(w, a.logger, http.StatusInternalServerError, "failed to list repositories", err)
		return
	}
	if repos == nil {
		repos = []core.Repo{}
	}
	writeJSON(w, http.StatusOK, repos)
}

// getRepo godoc
//
//	@Summary	Fetch a repository record by ID
//	@Tags		repos
//	@Produce	json
//	@Param		id	path		string	true	"Repo ID"
//	@Success	200	{object}	core.Repo
//	@Failure	404	{object}	errorResponse
//	@Security	BearerAuth
//	@Router		/api/repos/{id} [get]
func (a *API) getRepo(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := validateUUID(id); err != nil {
		writeError(w, a.logger, http.StatusBadRequest, err.Error(), nil)
		return
	}

	repo, err := a.repoStorage.GetRepo(id)
	if err != nil {
		if errors.Is(err, core.ErrRepoNotFound) {
			writeError(w, a.logger, http.StatusNotFound, "repository not found", nil)
			return
		}
		writeError(w, a.logger, http.StatusInternalServerError, "failed to fetch repository", err)
		return
	}
	writeJSON(w, http.StatusOK, repo)
}

// indexRepo godoc
//
//	@Summary		Build the vector index for a repository's docs
//	@Description	Embeds all completed docs into the repo namespace. Pass reindex=true to rebuild.
//	@Tags			search
//	@Produce		json
//	@Param			id		path		string	true	"Repo ID"
//	@Param			reindex	query		bool	false	"Replace an existing index"
//	@Success		200		{object}	map[string]int
//	@Failure		404		{object}	errorResponse
//	@Failure		409		{object}	errorResponse
//	@Security		BearerAuth
//	@Router			/api/repos/{id}/index [post]
func (a *API) indexRepo(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := validateUUID(id); err != nil {
		writeError(w, a.logger, http.StatusBadRequest, err.Error(), nil)
		return
	}

	if _, err := a.repoStorage.GetRepo(id); err != nil {
		if errors.Is(err, core.ErrRepoNotFound) {
			writeError(w, a.logger, http.StatusNotFound, "repository not found", nil)
			return
		}
		writeError(w, a.logger, http.StatusInternalServerError, "failed to fetch repository", err)
		return
	}

	docs, err := a.docStorage.GetDocsByRepo(id)
	if err != nil {
		writeError(w, a.logger, http.StatusInternalServerError, "failed to load docs", err)
		return
	}
	docPtrs := make([]*core.Doc, 0, len(docs))
	for i := range docs {
		docPtrs = append(docPtrs, &docs[i])
	}

	reindex := r.URL.Query().Get("reindex") == "true"
	start := time.Now()
	indexed, err := a.searcher.IndexRepo(r.Context(), id, docPtrs, reindex)
	if err != nil {
		if errors.Is(err, core.ErrNamespaceExists) {
			writeError(w, a.logger, http.StatusConflict, "repository already indexed, pass reindex=true to rebuild", nil)
			return
		}
		writeError(w, a.logger, http.StatusInternalServerError, "indexing failed", err)
		return
	}
	a.logger.Infow("Repository indexed", "repo_id", id, "docs", indexed, "duration", time.Since(start))

	writeJSON(w, http.StatusOK, map[string]int{"indexed": indexed})
}

// search godoc
//
//	@Summary	Semantic search over a repository's documentation
//	@Tags		search
//	@Accept		json
//	@Produce	json
//	@Param		request	body		searchRequest	true	"Repo ID, query text and optional top_k"
//	@Success	200		{array}		core.SearchHit
//	@Failure	404		{object}	errorResponse
//	@Security	BearerAuth
//	@Router		/api/search [post]
func (a *API) search(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := a.decodeJSONBody(w, r, &req); err != nil {
		writeError(w, a.logger, http.StatusBadRequest, err.Error(), nil)
		return
	}
	if err := a.validate.Struct(req); err != nil {
		writeError(w, a.logger, http.StatusBadRequest, "repo_id and query are required", nil)
		return
	}

	topK := req.TopK
	if topK <= 0 {
		topK = a.config.Index.DefaultTopK
	}

	hits, err := a.searcher.Query(r.Context(), req.RepoID, req.Query, topK)
	if err != nil {
		if errors.Is(err, core.ErrRepoNotFound) {
			writeError(w, a.logger, http.StatusNotFound, "repository is not indexed", nil)
			return
		}
		writeError(w, a.logger, http.StatusInternalServerError, "search failed", err)
		return
	}
	if hits == nil {
		hits = []core.SearchHit{}
	}
	writeJSON(w, http.StatusOK, hits)
}

// chatRelevanceThreshold drops weakly-matching chunks from the chat
// context; below it the retrieved doc adds noise, not grounding.
const chatRelevanceThreshold = 0.6

// chat godoc
//
//	@Summary		Ask a question about a repository's documentation
//	@Description	Retrieves the docs most relevant to the question and answers grounded on them.
//	@Tags			search
//	@Accept			json
//	@Produce		json
//	@Param			request	body		chatRequest	true	"Repo ID, question and optional model / top_k"
//	@Success		200		{object}	chatResponse
//	@Failure		400		{object}	errorResponse
//	@Failure		404		{object}	errorResponse
//	@Security		BearerAuth
//	@Router			/api/chat [post]
func (a *API) chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := a.decodeJSONBody(w, r, &req); err != nil {
		writeError(w, a.logger, http.StatusBadRequest, err.Error(), nil)
		return
	}
	if err := a.validate.Struct(req); err != nil {
		writeError(w, a.logger, http.StatusBadRequest, "repo_id and message are required", nil)
		return
	}

	model, err := core.ParseModel(req.Model)
	if err != nil {
		writeError(w, a.logger, http.StatusBadRequest, err.Error(), nil)
		return
	}

	topK := req.TopK
	if topK <= 0 {
		topK = a.config.Index.DefaultTopK
	}

	hits, err := a.searcher.Query(r.Context(), req.RepoID, req.Message, topK)
	if err != nil {
		if errors.Is(err, core.ErrRepoNotFound) {
			writeError(w, a.logger, http.StatusNotFound, "repository is not indexed", nil)
			return
		}
		writeError(w, a.logger, http.StatusInternalServerError, "search failed", err)
		return
	}

	// One context entry per doc, best-scoring chunk first.
	seen := make(map[string]bool)
	relevant := make([]docgen.RelevantDoc, 0, len(hits))
	sources := make([]chatSource, 0, len(hits))
	for _, hit := range hits {
		if hit.Score < chatRelevanceThreshold || seen[hit.DocID] {
			continue
		}
		doc, err := a.docStorage.GetDoc(hit.DocID)
		if err != nil {
			a.logger.Warnw("Indexed doc missing from store", "doc_id", hit.DocID, "error", err)
			continue
		}
		seen[hit.DocID] = true
		relevant = append(relevant, docgen.RelevantDoc{Path: doc.FilePath, Markdown: doc.Markdown, Score: hit.Score})
		sources = append(sources, chatSource{DocID: hit.DocID, Path: doc.FilePath, Score: hit.Score})
	}

	answer, err := a.generator.Answer(r.Context(), req.Message, relevant, model)
	if err != nil {
		writeError(w, a.logger, http.StatusInternalServerError, "failed to answer question", err)
		return
	}

	writeJSON(w, http.StatusOK, chatResponse{Answer: answer, Sources: sources})
}

// healthCheck godoc
//
//	@Summary	Service health
//	@Tags		health
//	@Produce	json
//	@Success	200	{object}	map[string]string
//	@Router		/health [get]
func (a *API) healthCheck(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	checks := make(map[string]string, len(a.healthChecks))
	code := http.StatusOK

	for name, check := range a.healthChecks {
		if err := check(r.Context()); err != nil {
			checks[name] = "unhealthy"
			status = "degraded"
			code = http.StatusServiceUnavailable
			a.logger.Warnw("Health check failed", "dependency", name, "error", err)
			continue
		}
		checks[name] = "healthy"
	}

	writeJSON(w, code, map[string]interface{}{
		"status": status,
		"checks": checks,
	})
}
