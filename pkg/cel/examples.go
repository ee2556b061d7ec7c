package cel

// FilterExpressionExamples lists candidate filters accepted by extraction.filter_expression.
var FilterExpressionExamples = map[string]string{
	"unread_only":       `is_new`,
	"text_contains":     `text.contains("price")`,
	"sender_prefix":     `sender.startsWith("John")`,
	"case_insensitive":  `text.lowerAscii().contains("urgent")`,
	"top_of_inbox":      `position < 10`,
	"regex":             `text.matches("^\\d{4}")`,
	"exclude_bots":      `!sender.endsWith("Bot")`,
	"combined":          `is_new && text.size() > 3`,
	"has_display_time":  `display_time != ""`,
	"sender_in_list":    `sender in ["John Smith", "Jane Roe"]`,
	"long_unread_first": `position == 0 || (is_new && text.size() >= 20)`,
}
