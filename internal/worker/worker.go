package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ngo-platform/backend/internal/models"
	"github.com/ngo-platform/backend/pkg/mailer"
	"github.com/ngo-platform/backend/pkg/queue"
)

// ErrNothingToDeliver marks a job whose submission carries no correspondence or address. Such jobs
// are not retried.
var ErrNothingToDeliver = errors.New("nothing to deliver")

// JobQueue is the delivery job source.
type JobQueue interface {
	Dequeue(ctx context.Context, timeout time.Duration) (*queue.Job, error)
	Retry(ctx context.Context, job *queue.Job) (dead bool, err error)
}

// SubmissionStore loads submissions and records delivery outcomes.
type SubmissionStore interface {
	Get(ctx context.Context, id string) (*models.Submission, error)
	UpdateDelivery(ctx context.Context, id, status string) error
}

// OrganizationLookup resolves the sending organization.
type OrganizationLookup interface {
	GetByID(ctx context.Context, id string) (*models.Organization, error)
}

// Mailer sends one email.
type Mailer interface {
	Send(ctx context.Context, e mailer.Email) error
}

// DeliveryProcessor emails generated correspondence to the submitter.
type DeliveryProcessor struct {
	subs        SubmissionStore
	orgs        OrganizationLookup
	mail        Mailer
	queue       JobQueue
	pollTimeout time.Duration
	backoff     time.Duration
	logger      *zap.Logger
}

// NewDeliveryProcessor creates a correspondence delivery processor.
func NewDeliveryProcessor(subs SubmissionStore, orgs OrganizationLookup, mail Mailer, q JobQueue, logger *zap.Logger) *DeliveryProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DeliveryProcessor{
		subs:        subs,
		orgs:        orgs,
		mail:        mail,
		queue:       q,
		pollTimeout: 5 * time.Second,
		backoff:     queue.RetryBackoff,
		logger:      logger,
	}
}

// Subject returns the email subject for a submission kind.
func Subject(kind models.SubmissionKind, orgName string) string {
	if kind == models.KindRecipient {
		return "Your request for assistance to " + orgName
	}
	return "Thank you for your donation to " + orgName
}

// Process executes one delivery job.
func (p *DeliveryProcessor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeDelivery {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.DeliveryPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	sub, err := p.subs.Get(ctx, payload.SubmissionID)
	if err != nil {
		return fmt.Errorf("load submission %s: %w", payload.SubmissionID, err)
	}
	if sub.DeliveryStatus == models.DeliverySent {
		p.logger.Info("correspondence already delivered", zap.String("submission_id", sub.ID))
		return nil
	}
	to := sub.SignerEmail()
	if to == "" || sub.EmailContent == "" {
		return ErrNothingToDeliver
	}
	org, err := p.orgs.GetByID(ctx, sub.OrganizationID)
	if err != nil {
		return fmt.Errorf("load organization %s: %w", sub.OrganizationID, err)
	}

	err = p.mail.Send(ctx, mailer.Email{
		To:      to,
		ToName:  sub.SignerName(),
		Subject: Subject(sub.Kind, org.Name),
		Body:    sub.EmailContent,
	})
	if err != nil {
		return fmt.Errorf("send: %w", err)
	}
	if err := p.subs.UpdateDelivery(ctx, sub.ID, models.DeliverySent); err != nil {
		p.logger.Error("update delivery status failed", zap.Error(err), zap.String("submission_id", sub.ID))
		return nil
	}
	p.logger.Info("correspondence delivered", zap.String("submission_id", sub.ID), zap.String("ngo_id", sub.OrganizationID))
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error. It returns when ctx is done.
func (p *DeliveryProcessor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("delivery worker stopping")
			return
		default:
		}

		job, err := p.queue.Dequeue(ctx, p.pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			p.sleep(ctx)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.fail(ctx, job, err)
		}
	}
}

func (p *DeliveryProcessor) fail(ctx context.Context, job *queue.Job, err error) {
	p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt), zap.Error(err))
	dead := errors.Is(err, ErrNothingToDeliver)
	if !dead {
		var reErr error
		dead, reErr = p.queue.Retry(ctx, job)
		if reErr != nil {
			p.logger.Error("retry enqueue failed", zap.Error(reErr))
		}
	}
	if dead {
		var payload queue.DeliveryPayload
		if json.Unmarshal(job.Payload, &payload) == nil && payload.SubmissionID != "" {
			if uerr := p.subs.UpdateDelivery(ctx, payload.SubmissionID, models.DeliveryFailed); uerr != nil {
				p.logger.Warn("update delivery status failed", zap.String("submission_id", payload.SubmissionID), zap.Error(uerr))
			}
		}
		return
	}
	p.sleep(ctx)
}

func (p *DeliveryProcessor) sleep(ctx context.Context) {
	t := time.NewTimer(p.backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
