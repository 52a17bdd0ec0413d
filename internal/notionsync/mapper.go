package notionsync

import (
	"strconv"
	"time"

	"github.com/dvloznov/ledger-assistant/internal/domain"
	"github.com/jomei/notionapi"
)

// Property names of the mirror database.
const (
	PropTransactionID = "Transaction ID"
	PropType          = "Type"
	PropAmount        = "Amount"
	PropNote          = "Note"
	PropCategory      = "Category"
	PropDate          = "Date"
)

// TransactionToNotionProperties converts a ledger row to page properties.
// Empty note, category and date are left out so Notion keeps them blank.
func TransactionToNotionProperties(tx domain.Transaction) notionapi.Properties {
	props := notionapi.Properties{
		PropTransactionID: notionapi.TitleProperty{
			Title: richText(strconv.FormatInt(tx.ID, 10)),
		},
		PropType: notionapi.SelectProperty{
			Select: notionapi.Option{Name: string(tx.Type)},
		},
		PropAmount: notionapi.NumberProperty{
			Number: tx.Amount.InexactFloat64(),
		},
	}

	if tx.Note != "" {
		props[PropNote] = notionapi.RichTextProperty{RichText: richText(tx.Note)}
	}

	if tx.Category != "" {
		props[PropCategory] = notionapi.SelectProperty{
			Select: notionapi.Option{Name: tx.Category},
		}
	}

	if d, err := tx.CivilDate(); err == nil {
		start := notionapi.Date(time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC))
		props[PropDate] = notionapi.DateProperty{
			Date: &notionapi.DateObject{Start: &start},
		}
	}

	return props
}

func richText(content string) []notionapi.RichText {
	return []notionapi.RichText{
		{
			Type:      notionapi.ObjectTypeText,
			Text:      &notionapi.Text{Content: content},
			PlainText: content,
		},
	}
}

// extractTransactionID reads the title property of a mirrored page.
// Returns empty string if not found.
func extractTransactionID(page notionapi.Page) string {
	prop, ok := page.Properties[PropTransactionID]
	if !ok {
		return ""
	}

	var title []notionapi.RichText
	switch p := prop.(type) {
	case *notionapi.TitleProperty:
		title = p.Title
	case notionapi.TitleProperty:
		title = p.Title
	}
	if len(title) == 0 {
		return ""
	}
	if title[0].PlainText != "" {
		return title[0].PlainText
	}
	if title[0].Text != nil {
		return title[0].Text.Content
	}
	return ""
}
