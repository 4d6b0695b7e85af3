package translate

import (
	"strconv"
	"strings"

	"github.com/ginjaninja78/chms-migrate/internal/identity"
	"github.com/ginjaninja78/chms-migrate/internal/snapshot"
	"github.com/ginjaninja78/chms-migrate/internal/types"
)

// Note translates a notes row. The person comes from the household resolver
// when the row has no individual; unresolvable notes and notes without text
// are dropped.
//
// ID: NoteId when present, else DeriveID([person, type, date, text]).
func Note(row snapshot.Row, ctx *Context) Outcome[*types.PersonNote] {
	f := read(row)

	text := strings.TrimSpace(f.str(ColNoteText))
	if text == "" {
		f.warn(ColNoteText, "note has no text")
		return drop[*types.PersonNote](f.warnings)
	}

	personID, ok := owner(f, ctx)
	if !ok {
		return drop[*types.PersonNote](f.warnings)
	}

	noteType := f.str(ColNoteType)
	n := &types.PersonNote{
		PersonId:  personID,
		NoteType:  noteType,
		Caption:   noteType,
		Text:      text,
		DateTime:  f.timePtr(ColNoteDate),
		IsPrivate: f.boolOr(ColIsPrivate, false),
		IsAlert:   strings.Contains(strings.ToLower(noteType), "alert"),
		CreatedBy: f.str(ColCreatedBy),
	}

	if id := f.intPtr(ColNoteID); id != nil {
		n.Id = *id
	} else {
		n.Id = identity.DeriveID(strconv.Itoa(personID), noteType, f.str(ColNoteDate), text)
	}
	return emit(n, f.warnings)
}
