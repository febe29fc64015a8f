package jobs

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/leadwatch/internal/httpclient"
	"github.com/ternarybob/leadwatch/internal/interfaces"
	"github.com/ternarybob/leadwatch/internal/models"
)

// URLResolver maps an API path to an absolute URL
type URLResolver func(path string) string

// Client implements interfaces.JobsAPI over the session gateway
type Client struct {
	doer   interfaces.Doer
	url    URLResolver
	logger arbor.ILogger
}

// NewClient creates a jobs client. Every call goes through doer.
func NewClient(doer interfaces.Doer, url URLResolver, logger arbor.ILogger) *Client {
	return &Client{
		doer:   doer,
		url:    url,
		logger: logger,
	}
}

func (c *Client) call(ctx context.Context, method, path string, query url.Values, out any) error {
	target := c.url(path)
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := httpclient.NewJSONRequest(ctx, method, target, nil)
	if err != nil {
		return err
	}

	resp, err := c.doer.Do(ctx, req)
	if err != nil {
		return err
	}

	if err := httpclient.DecodeEnvelope(resp, out); err != nil {
		c.logger.Debug().Err(err).Str("method", method).Str("path", path).Msg("Jobs API call failed")
		return err
	}
	return nil
}

// GetJob fetches status, progress and the full log to date
func (c *Client) GetJob(ctx context.Context, jobID string) (*models.JobDetail, error) {
	if jobID == "" {
		return nil, fmt.Errorf("job id is required")
	}

	var detail models.JobDetail
	if err := c.call(ctx, http.MethodGet, "/jobs/"+url.PathEscape(jobID), nil, &detail); err != nil {
		return nil, err
	}
	detail.Normalize()
	if detail.ID == "" {
		detail.ID = jobID
	}
	return &detail, nil
}

// ListJobs lists job descriptors, newest first.
// The lead filter is also applied locally because not every backend honours it.
func (c *Client) ListJobs(ctx context.Context, opts models.JobListOptions) ([]models.Job, error) {
	query := url.Values{}
	query.Set("active_only", strconv.FormatBool(opts.ActiveOnly))
	if opts.LeadID != nil {
		query.Set("lead_id", strconv.FormatInt(*opts.LeadID, 10))
	}

	var list models.JobList
	if err := c.call(ctx, http.MethodGet, "/jobs", query, &list); err != nil {
		return nil, err
	}

	jobs := make([]models.Job, 0, len(list.Jobs))
	for _, job := range list.Jobs {
		if opts.LeadID != nil && (job.LeadID == nil || *job.LeadID != *opts.LeadID) {
			continue
		}
		job.Progress = models.ClampProgress(job.Progress)
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// CancelJob requests cancellation of a queued or running job
func (c *Client) CancelJob(ctx context.Context, jobID string) (*models.CancelResult, error) {
	var result models.CancelResult
	if err := c.call(ctx, http.MethodPost, "/jobs/"+url.PathEscape(jobID)+"/cancel", nil, &result); err != nil {
		return nil, err
	}
	c.logger.Info().Str("job_id", jobID).Str("status", string(result.Status)).Msg("Job cancel requested")
	return &result, nil
}

// VerifyLead queues a verification job for the lead
func (c *Client) VerifyLead(ctx context.Context, leadID int64) (*models.VerifyResult, error) {
	var result models.VerifyResult
	path := "/leads/" + strconv.FormatInt(leadID, 10) + "/verify"
	if err := c.call(ctx, http.MethodPost, path, nil, &result); err != nil {
		return nil, err
	}
	if result.JobID == "" {
		return nil, &models.BackendError{StatusCode: http.StatusOK, Code: "MALFORMED_RESPONSE", Message: "verify response carried no job_id"}
	}
	return &result, nil
}

// LeadVerificationLog resolves the most recent verification job of a lead
func (c *Client) LeadVerificationLog(ctx context.Context, leadID int64) (*models.LeadLog, error) {
	var log models.LeadLog
	path := "/leads/" + strconv.FormatInt(leadID, 10) + "/verification-log"
	if err := c.call(ctx, http.MethodGet, path, nil, &log); err != nil {
		return nil, err
	}
	return &log, nil
}
