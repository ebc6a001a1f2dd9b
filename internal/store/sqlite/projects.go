package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/capitalize-ai/renovation-planner/internal/model"
	"github.com/capitalize-ai/renovation-planner/internal/store"
)

func (s *Store) CreateProject(ctx context.Context, p *model.Project) error {
	_, err := s.DB.ExecContext(ctx, `INSERT INTO projects(id,name,address,description,homeowner_name,homeowner_email,created_at) VALUES (?,?,?,?,?,?,?)`,
		p.ID, p.Name, nullable(p.Address), nullable(p.Description), p.HomeownerName, p.HomeownerEmail, formatTime(p.CreatedAt))
	return mapErr(err)
}

func (s *Store) GetProject(ctx context.Context, id string) (*model.Project, error) {
	var p model.Project
	var created string
	err := s.DB.QueryRowContext(ctx, `SELECT id,name,COALESCE(address,''),COALESCE(description,''),homeowner_name,homeowner_email,created_at FROM projects WHERE id=?`, id).
		Scan(&p.ID, &p.Name, &p.Address, &p.Description, &p.HomeownerName, &p.HomeownerEmail, &created)
	if err != nil {
		return nil, mapErr(err)
	}
	p.CreatedAt = parseTime(created)
	return &p, nil
}

const contractorColumns = `id,project_id,name,COALESCE(company,''),email,COALESCE(trade,''),created_at`

func scanContractor(row scanner) (*model.Contractor, error) {
	var c model.Contractor
	var created string
	if err := row.Scan(&c.ID, &c.ProjectID, &c.Name, &c.Company, &c.Email, &c.Trade, &created); err != nil {
		return nil, mapErr(err)
	}
	c.CreatedAt = parseTime(created)
	return &c, nil
}

func (s *Store) CreateContractor(ctx context.Context, c *model.Contractor) error {
	_, err := s.DB.ExecContext(ctx, `INSERT INTO contractors(id,project_id,name,company,email,trade,created_at) VALUES (?,?,?,?,?,?,?)`,
		c.ID, c.ProjectID, c.Name, nullable(c.Company), c.Email, nullable(c.Trade), formatTime(c.CreatedAt))
	return mapErr(err)
}

func (s *Store) GetContractor(ctx context.Context, id string) (*model.Contractor, error) {
	return scanContractor(s.DB.QueryRowContext(ctx, `SELECT `+contractorColumns+` FROM contractors WHERE id=?`, id))
}

func (s *Store) ListContractors(ctx context.Context, projectID string) ([]model.Contractor, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT `+contractorColumns+` FROM contractors WHERE project_id=? ORDER BY created_at`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Contractor
	for rows.Next() {
		c, err := scanContractor(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

const conversationSelect = `SELECT c.id,c.project_id,c.contractor_id,c.created_at,c.last_activity_at,
	(SELECT COUNT(*) FROM messages m WHERE m.conversation_id=c.id) FROM conversations c`

func scanConversation(row scanner) (*model.Conversation, error) {
	var c model.Conversation
	var created, last string
	if err := row.Scan(&c.ID, &c.ProjectID, &c.ContractorID, &created, &last, &c.MessageCount); err != nil {
		return nil, mapErr(err)
	}
	c.CreatedAt = parseTime(created)
	c.LastActivityAt = parseTime(last)
	return &c, nil
}

func (s *Store) CreateConversation(ctx context.Context, c *model.Conversation) error {
	_, err := s.DB.ExecContext(ctx, `INSERT INTO conversations(id,project_id,contractor_id,created_at,last_activity_at) VALUES (?,?,?,?,?)`,
		c.ID, c.ProjectID, c.ContractorID, formatTime(c.CreatedAt), formatTime(c.LastActivityAt))
	return mapErr(err)
}

func (s *Store) GetConversation(ctx context.Context, id string) (*model.Conversation, error) {
	return scanConversation(s.DB.QueryRowContext(ctx, conversationSelect+` WHERE c.id=?`, id))
}

func (s *Store) GetConversationByParticipants(ctx context.Context, projectID, contractorID string) (*model.Conversation, error) {
	return scanConversation(s.DB.QueryRowContext(ctx, conversationSelect+` WHERE c.project_id=? AND c.contractor_id=?`, projectID, contractorID))
}

func (s *Store) ListConversations(ctx context.Context, projectID string) ([]model.Conversation, error) {
	rows, err := s.DB.QueryContext(ctx, conversationSelect+` WHERE c.project_id=? ORDER BY c.last_activity_at DESC`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (s *Store) TouchConversation(ctx context.Context, id string, at time.Time) error {
	return touch(ctx, s.DB, id, at)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func touch(ctx context.Context, db execer, id string, at time.Time) error {
	ts := formatTime(at)
	res, err := db.ExecContext(ctx, `UPDATE conversations SET last_activity_at=CASE WHEN last_activity_at < ? THEN ? ELSE last_activity_at END WHERE id=?`, ts, ts, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) GetInbound(ctx context.Context, conversationID, messageID string) (*model.InboundRecord, error) {
	rec := model.InboundRecord{ConversationID: conversationID, MessageID: messageID}
	var seen string
	err := s.DB.QueryRowContext(ctx, `SELECT local_message_id, extracted, seen_at FROM inbound_emails WHERE conversation_id=? AND message_id=?`,
		conversationID, messageID).Scan(&rec.LocalMessageID, &rec.Extracted, &seen)
	if err != nil {
		return nil, mapErr(err)
	}
	rec.SeenAt = parseTime(seen)
	return &rec, nil
}

func (s *Store) SaveInbound(ctx context.Context, rec *model.InboundRecord) error {
	_, err := s.DB.ExecContext(ctx, `INSERT INTO inbound_emails(conversation_id,message_id,local_message_id,extracted,seen_at) VALUES (?,?,?,?,?)
		ON CONFLICT(conversation_id,message_id) DO UPDATE SET local_message_id=excluded.local_message_id, extracted=excluded.extracted`,
		rec.ConversationID, rec.MessageID, rec.LocalMessageID, rec.Extracted, formatTime(rec.SeenAt))
	return mapErr(err)
}
