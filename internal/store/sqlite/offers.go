package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/capitalize-ai/renovation-planner/internal/model"
)

const offerColumns = `id,project_id,contractor_id,total_price,currency,COALESCE(timeline_min_days,0),COALESCE(timeline_max_days,0),scope,COALESCE(terms,''),offer_date,COALESCE(source_message_id,''),created_at`

func scanOffer(row scanner) (*model.Offer, error) {
	var o model.Offer
	var offerDate, created string
	if err := row.Scan(&o.ID, &o.ProjectID, &o.ContractorID, &o.TotalPrice, &o.Currency, &o.TimelineMinDays, &o.TimelineMaxDays,
		&o.Scope, &o.Terms, &offerDate, &o.SourceMessageID, &created); err != nil {
		return nil, mapErr(err)
	}
	o.OfferDate = parseTime(offerDate)
	o.CreatedAt = parseTime(created)
	return &o, nil
}

func (s *Store) CreateOffer(ctx context.Context, o *model.Offer) error {
	_, err := s.DB.ExecContext(ctx, `INSERT INTO offers(id,project_id,contractor_id,total_price,currency,timeline_min_days,timeline_max_days,scope,terms,offer_date,source_message_id,created_at) VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		o.ID, o.ProjectID, o.ContractorID, o.TotalPrice, o.Currency, o.TimelineMinDays, o.TimelineMaxDays,
		o.Scope, nullable(o.Terms), formatTime(o.OfferDate), nullable(o.SourceMessageID), formatTime(o.CreatedAt))
	return mapErr(err)
}

func (s *Store) GetOffer(ctx context.Context, id string) (*model.Offer, error) {
	return scanOffer(s.DB.QueryRowContext(ctx, `SELECT `+offerColumns+` FROM offers WHERE id=?`, id))
}

func (s *Store) LatestOffer(ctx context.Context, projectID, contractorID string) (*model.Offer, error) {
	return scanOffer(s.DB.QueryRowContext(ctx, `SELECT `+offerColumns+` FROM offers WHERE project_id=? AND contractor_id=? ORDER BY offer_date DESC, created_at DESC LIMIT 1`, projectID, contractorID))
}

func (s *Store) LatestOffers(ctx context.Context, projectID string) ([]model.Offer, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT `+offerColumns+` FROM (
		SELECT *, ROW_NUMBER() OVER (PARTITION BY contractor_id ORDER BY offer_date DESC, created_at DESC) AS rn
		FROM offers WHERE project_id=?) WHERE rn=1 ORDER BY contractor_id`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Offer
	for rows.Next() {
		o, err := scanOffer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

const analysisColumns = `id,offer_id,project_id,contractor_id,COALESCE(conversation_id,''),summary,strengths,concerns,missing_items,suggested_questions,COALESCE(price_assessment,''),COALESCE(focus,''),has_conversation_updates,transcript_entries,COALESCE(previous_analysis_id,''),created_at`

func scanAnalysis(row scanner) (*model.Analysis, error) {
	var a model.Analysis
	var strengths, concerns, missing, questions sql.NullString
	var created string
	if err := row.Scan(&a.ID, &a.OfferID, &a.ProjectID, &a.ContractorID, &a.ConversationID, &a.Summary,
		&strengths, &concerns, &missing, &questions, &a.PriceAssessment, &a.Focus,
		&a.HasConversationUpdates, &a.TranscriptEntries, &a.PreviousAnalysisID, &created); err != nil {
		return nil, mapErr(err)
	}
	for _, f := range []struct {
		src sql.NullString
		dst *[]string
	}{{strengths, &a.Strengths}, {concerns, &a.Concerns}, {missing, &a.MissingItems}, {questions, &a.SuggestedQuestions}} {
		if err := fromJSON(f.src, f.dst); err != nil {
			return nil, fmt.Errorf("decode analysis %s: %w", a.ID, err)
		}
	}
	a.CreatedAt = parseTime(created)
	return &a, nil
}

func (s *Store) CreateAnalysis(ctx context.Context, a *model.Analysis) error {
	var lists [4]string
	for i, l := range [][]string{a.Strengths, a.Concerns, a.MissingItems, a.SuggestedQuestions} {
		var err error
		if lists[i], err = toJSON(l); err != nil {
			return err
		}
	}
	_, err := s.DB.ExecContext(ctx, `INSERT INTO analyses(id,offer_id,project_id,contractor_id,conversation_id,summary,strengths,concerns,missing_items,suggested_questions,price_assessment,focus,has_conversation_updates,transcript_entries,previous_analysis_id,created_at) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		a.ID, a.OfferID, a.ProjectID, a.ContractorID, nullable(a.ConversationID), a.Summary,
		lists[0], lists[1], lists[2], lists[3], nullable(a.PriceAssessment), nullable(a.Focus),
		boolInt(a.HasConversationUpdates), a.TranscriptEntries, nullable(a.PreviousAnalysisID), formatTime(a.CreatedAt))
	return mapErr(err)
}

func (s *Store) GetAnalysis(ctx context.Context, id string) (*model.Analysis, error) {
	return scanAnalysis(s.DB.QueryRowContext(ctx, `SELECT `+analysisColumns+` FROM analyses WHERE id=?`, id))
}

func (s *Store) ListAnalyses(ctx context.Context, offerID string) ([]model.Analysis, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT `+analysisColumns+` FROM analyses WHERE offer_id=? ORDER BY created_at DESC`, offerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Analysis
	for rows.Next() {
		a, err := scanAnalysis(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func (s *Store) LatestAnalysis(ctx context.Context, offerID string) (*model.Analysis, error) {
	return scanAnalysis(s.DB.QueryRowContext(ctx, `SELECT `+analysisColumns+` FROM analyses WHERE offer_id=? ORDER BY created_at DESC LIMIT 1`, offerID))
}

func (s *Store) CreateComparison(ctx context.Context, c *model.Comparison) error {
	offerIDs, err := toJSON(c.OfferIDs)
	if err != nil {
		return err
	}
	entries, err := toJSON(c.Entries)
	if err != nil {
		return err
	}
	_, err = s.DB.ExecContext(ctx, `INSERT INTO comparisons(id,project_id,conversation_id,primary_offer_id,offer_ids,summary,entries,recommendation,focus,has_conversation_updates,transcript_entries,created_at) VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		c.ID, c.ProjectID, nullable(c.ConversationID), c.PrimaryOfferID, offerIDs, c.Summary, entries,
		nullable(c.Recommendation), nullable(c.Focus), boolInt(c.HasConversationUpdates), c.TranscriptEntries, formatTime(c.CreatedAt))
	return mapErr(err)
}

func (s *Store) GetComparison(ctx context.Context, id string) (*model.Comparison, error) {
	var c model.Comparison
	var offerIDs, entries sql.NullString
	var created string
	err := s.DB.QueryRowContext(ctx, `SELECT id,project_id,COALESCE(conversation_id,''),primary_offer_id,offer_ids,summary,entries,COALESCE(recommendation,''),COALESCE(focus,''),has_conversation_updates,transcript_entries,created_at FROM comparisons WHERE id=?`, id).
		Scan(&c.ID, &c.ProjectID, &c.ConversationID, &c.PrimaryOfferID, &offerIDs, &c.Summary, &entries,
			&c.Recommendation, &c.Focus, &c.HasConversationUpdates, &c.TranscriptEntries, &created)
	if err != nil {
		return nil, mapErr(err)
	}
	if err := fromJSON(offerIDs, &c.OfferIDs); err != nil {
		return nil, fmt.Errorf("decode comparison %s: %w", id, err)
	}
	if err := fromJSON(entries, &c.Entries); err != nil {
		return nil, fmt.Errorf("decode comparison %s: %w", id, err)
	}
	c.CreatedAt = parseTime(created)
	return &c, nil
}
