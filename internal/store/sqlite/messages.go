package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"time"

	"github.com/capitalize-ai/renovation-planner/internal/model"
	"github.com/capitalize-ai/renovation-planner/internal/store"
)

// AppendMessage inserts the message and its action in one transaction.
func (s *Store) AppendMessage(ctx context.Context, m *model.Message) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM conversations WHERE id=?`, m.ConversationID).Scan(&exists); err != nil {
		return err
	}
	if exists == 0 {
		return store.ErrNotFound
	}

	var seq uint64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq),0)+1 FROM messages WHERE conversation_id=?`, m.ConversationID).Scan(&seq); err != nil {
		return err
	}

	attachments, err := toJSON(m.Attachments)
	if err != nil {
		return fmt.Errorf("encode attachments: %w", err)
	}
	actionRef := m.ActionRef
	if m.Action != nil {
		actionRef = m.Action.ID
	}

	_, err = tx.ExecContext(ctx, `INSERT INTO messages(id,conversation_id,seq,sender,kind,content,attachments,action_ref,inbound_message_id,created_at) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		m.ID, m.ConversationID, seq, m.Sender, m.Kind, m.Content, attachments, nullable(actionRef), nullable(m.InboundMessageID), formatTime(m.CreatedAt))
	if err != nil {
		return mapErr(err)
	}

	if m.Action != nil {
		if err := insertAction(ctx, tx, m.Action); err != nil {
			return err
		}
	}
	if err := touch(ctx, tx, m.ConversationID, m.CreatedAt); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	m.Sequence = seq
	return nil
}

const messageSelect = `SELECT m.id,m.conversation_id,m.seq,m.sender,m.kind,m.content,m.attachments,COALESCE(m.action_ref,''),COALESCE(m.inbound_message_id,''),m.created_at,` +
	actionColumnsAliased + ` FROM messages m LEFT JOIN actions a ON a.message_id=m.id AND m.kind='action_request'`

func scanMessage(row scanner) (*model.Message, error) {
	var m model.Message
	var attachments sql.NullString
	var created string
	var ar actionRow
	dest := []any{&m.ID, &m.ConversationID, &m.Sequence, &m.Sender, &m.Kind, &m.Content, &attachments, &m.ActionRef, &m.InboundMessageID, &created}
	dest = append(dest, ar.nullableDest()...)
	if err := row.Scan(dest...); err != nil {
		return nil, mapErr(err)
	}
	m.CreatedAt = parseTime(created)
	if err := fromJSON(attachments, &m.Attachments); err != nil {
		return nil, fmt.Errorf("decode attachments of %s: %w", m.ID, err)
	}
	if ar.id.Valid {
		a, err := ar.toAction()
		if err != nil {
			return nil, err
		}
		m.Action = a
		m.ActionRef = ""
	}
	return &m, nil
}

func (s *Store) GetMessage(ctx context.Context, id string) (*model.Message, error) {
	return scanMessage(s.DB.QueryRowContext(ctx, messageSelect+` WHERE m.id=?`, id))
}

func (s *Store) ListMessages(ctx context.Context, conversationID string) ([]model.Message, error) {
	return s.ListRecentMessages(ctx, conversationID, 0)
}

func (s *Store) ListRecentMessages(ctx context.Context, conversationID string, n int) ([]model.Message, error) {
	if _, err := s.GetConversation(ctx, conversationID); err != nil {
		return nil, err
	}
	limit := -1
	if n > 0 {
		limit = n
	}
	rows, err := s.DB.QueryContext(ctx, messageSelect+` WHERE m.conversation_id=? ORDER BY m.seq DESC LIMIT ?`, conversationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	slices.Reverse(out)
	return out, nil
}

const actionColumns = `id,message_id,conversation_id,type,params,status,result,failure,reasoning,summary,validation_error,rejection_summary,attempts,created_at,updated_at`

const actionColumnsAliased = `a.id,a.message_id,a.conversation_id,a.type,a.params,a.status,a.result,a.failure,a.reasoning,a.summary,a.validation_error,a.rejection_summary,a.attempts,a.created_at,a.updated_at`

// actionRow holds nullable columns so it can be scanned from a LEFT JOIN.
type actionRow struct {
	id, messageID, conversationID, typ, params, status sql.NullString
	result, failure, reasoning, summary                 sql.NullString
	validationError, rejectionSummary                   sql.NullString
	attempts                                            sql.NullInt64
	createdAt, updatedAt                                sql.NullString
}

func (r *actionRow) nullableDest() []any {
	return []any{&r.id, &r.messageID, &r.conversationID, &r.typ, &r.params, &r.status, &r.result, &r.failure,
		&r.reasoning, &r.summary, &r.validationError, &r.rejectionSummary, &r.attempts, &r.createdAt, &r.updatedAt}
}

func (r *actionRow) toAction() (*model.Action, error) {
	a := &model.Action{
		ID:               r.id.String,
		MessageID:        r.messageID.String,
		ConversationID:   r.conversationID.String,
		Type:             model.ActionType(r.typ.String),
		Status:           model.ActionStatus(r.status.String),
		Reasoning:        r.reasoning.String,
		Summary:          r.summary.String,
		ValidationError:  r.validationError.String,
		RejectionSummary: r.rejectionSummary.String,
		Attempts:         int(r.attempts.Int64),
		CreatedAt:        parseTime(r.createdAt.String),
		UpdatedAt:        parseTime(r.updatedAt.String),
	}
	params, err := model.DecodeParams(a.Type, []byte(r.params.String))
	if err != nil {
		return nil, fmt.Errorf("action %s: %w", a.ID, err)
	}
	a.Params = params
	if r.result.Valid && r.result.String != "" {
		if a.Result, err = model.DecodeResult(a.Type, []byte(r.result.String)); err != nil {
			return nil, fmt.Errorf("action %s: %w", a.ID, err)
		}
	}
	if r.failure.Valid && r.failure.String != "" {
		a.Failure = &model.Failure{}
		if err := fromJSON(r.failure, a.Failure); err != nil {
			return nil, fmt.Errorf("action %s failure: %w", a.ID, err)
		}
	}
	return a, nil
}

type actionValues struct {
	params, result, failure any
}

func encodeAction(a *model.Action) (*actionValues, error) {
	if a.Params == nil || a.Params.ActionType() != a.Type {
		return nil, fmt.Errorf("action %s: parameters do not match type %s", a.ID, a.Type)
	}
	params, err := toJSON(a.Params)
	if err != nil {
		return nil, err
	}
	v := &actionValues{params: params}
	if a.Result != nil {
		if a.Result.ActionType() != a.Type {
			return nil, fmt.Errorf("action %s: result does not match type %s", a.ID, a.Type)
		}
		if v.result, err = toJSON(a.Result); err != nil {
			return nil, err
		}
	}
	if a.Failure != nil {
		if v.failure, err = toJSON(a.Failure); err != nil {
			return nil, err
		}
	}
	return v, nil
}

func insertAction(ctx context.Context, tx *sql.Tx, a *model.Action) error {
	v, err := encodeAction(a)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO actions(`+actionColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		a.ID, a.MessageID, a.ConversationID, a.Type, v.params, a.Status, v.result, v.failure,
		nullable(a.Reasoning), nullable(a.Summary), nullable(a.ValidationError), nullable(a.RejectionSummary),
		a.Attempts, formatTime(a.CreatedAt), formatTime(a.UpdatedAt))
	return mapErr(err)
}

func scanAction(row scanner) (*model.Action, error) {
	var r actionRow
	if err := row.Scan(r.nullableDest()...); err != nil {
		return nil, mapErr(err)
	}
	return r.toAction()
}

func (s *Store) GetAction(ctx context.Context, id string) (*model.Action, error) {
	return scanAction(s.DB.QueryRowContext(ctx, `SELECT `+actionColumns+` FROM actions WHERE id=?`, id))
}

// TransitionAction reads, mutates and writes the action in one transaction;
// the UPDATE is conditioned on the expected status.
func (s *Store) TransitionAction(ctx context.Context, id string, expected model.ActionStatus, update func(*model.Action) error) (*model.Action, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	current, err := scanAction(tx.QueryRowContext(ctx, `SELECT `+actionColumns+` FROM actions WHERE id=?`, id))
	if err != nil {
		return nil, err
	}
	if current.Status != expected {
		return nil, store.ErrStatusConflict
	}

	next := *current
	if err := update(&next); err != nil {
		return nil, err
	}
	if err := store.CheckTransition(expected, &next); err != nil {
		return nil, err
	}
	next.ID, next.MessageID, next.ConversationID, next.Type = current.ID, current.MessageID, current.ConversationID, current.Type
	next.UpdatedAt = time.Now().UTC()

	v, err := encodeAction(&next)
	if err != nil {
		return nil, err
	}
	res, err := tx.ExecContext(ctx, `UPDATE actions SET params=?,status=?,result=?,failure=?,validation_error=?,rejection_summary=?,attempts=?,updated_at=? WHERE id=? AND status=?`,
		v.params, next.Status, v.result, v.failure, nullable(next.ValidationError), nullable(next.RejectionSummary),
		next.Attempts, formatTime(next.UpdatedAt), id, expected)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, store.ErrStatusConflict
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &next, nil
}

func (s *Store) ListActionsByStatus(ctx context.Context, status model.ActionStatus, limit int) ([]model.Action, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.DB.QueryContext(ctx, `SELECT `+actionColumns+` FROM actions WHERE status=? ORDER BY created_at LIMIT ?`, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Action
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}
