package history

import "time"

// entryModel represents the database row for the transfers table.
// Times are Unix milliseconds.
type entryModel struct {
	ID          int64
	SessionID   string
	Pair        string
	Operation   string
	Side        string
	FileName    string
	Destination *string // nullable
	Error       *string // nullable
	CreatedAt   int64
}

func scanEntry(scanner interface{ Scan(...any) error }) (*entryModel, error) {
	var m entryModel
	err := scanner.Scan(
		&m.ID, &m.SessionID, &m.Pair, &m.Operation, &m.Side,
		&m.FileName, &m.Destination, &m.Error, &m.CreatedAt,
	)
	return &m, err
}

func toEntryModel(e Entry) *entryModel {
	m := &entryModel{
		ID:          e.ID,
		SessionID:   e.SessionID,
		Pair:        e.Pair,
		Operation:   string(e.Operation),
		Side:        e.Side,
		FileName:    e.FileName,
		Destination: nullable(e.Destination),
		Error:       nullable(e.Error),
	}
	if !e.CreatedAt.IsZero() {
		m.CreatedAt = e.CreatedAt.UnixMilli()
	}
	return m
}

func (m *entryModel) toEntry() Entry {
	e := Entry{
		ID:        m.ID,
		SessionID: m.SessionID,
		Pair:      m.Pair,
		Operation: Operation(m.Operation),
		Side:      m.Side,
		FileName:  m.FileName,
		CreatedAt: time.UnixMilli(m.CreatedAt),
	}
	if m.Destination != nil {
		e.Destination = *m.Destination
	}
	if m.Error != nil {
		e.Error = *m.Error
	}
	return e
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
