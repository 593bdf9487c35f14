package service

import (
	"regexp"
	"strconv"
	"strings"

	"ikap-analysis/internal/models"
)

const (
	defaultAmount  = "не указана"
	defaultTerm    = "не указан"
	defaultPurpose = "не указана"
	defaultBIN     = "не указан"
	defaultName    = "не указано"
	defaultEmail   = "не указан"
	defaultPhone   = "не указан"
)

// minRequestedAmount filters out numbers too small to be a financing request.
const minRequestedAmount = 10_000_000

var (
	amountQuestionRe  = regexp.MustCompile(`(?i)какую сумму|сумму.*получить`)
	termQuestionRe    = regexp.MustCompile(`(?i)срок|месяц`)
	purposeQuestionRe = regexp.MustCompile(`(?i)для чего|цел[ьи]|привлекаете финансирование`)

	millionsRe  = regexp.MustCompile(`(?i)(\d+)\s*(мил|млн|миллион)`)
	longNumRe   = regexp.MustCompile(`\d{7,}`)
	groupedRe   = regexp.MustCompile(`(\d+)\s+(\d{3})\s+(\d{3})`)
	thousandsRe = regexp.MustCompile(`(?i)(\d+)\s*тыс`)
	firstNumRe  = regexp.MustCompile(`\d+`)

	termRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(\d+)\s*месяц`),
		regexp.MustCompile(`(?i)срок[:\s]*(\d+)`),
		regexp.MustCompile(`(?i)(\d+)\s*мес`),
		regexp.MustCompile(`(?i)срок[^0-9]*(\d+)`),
	}

	binRe   = regexp.MustCompile(`\b(\d{12})\b`)
	emailRe = regexp.MustCompile(`(?i)[a-z0-9._%+-]+@[a-z0-9.-]+\.[a-z]{2,}`)
	phoneRe = regexp.MustCompile(`\+?\d[\d\s-]{9,}`)
	nameRe  = regexp.MustCompile(`[А-Яа-яЁё]+\s+[А-Яа-яЁё]+`)

	attachedFileRe   = regexp.MustCompile(`\[Прикреплен файл.*?\]`)
	dateTagRe        = regexp.MustCompile(`\[ДАТА:.*?\]`)
	leadingBracketRe = regexp.MustCompile(`^\s*\[.*?\]\s*`)
)

var purposeKeywords = []string{"новый бизнес", "расширение", "оборотные средства", "инвестиции", "пополнение"}

// ExtractApplicant reads the financing request out of the intake conversation.
// Answers directly following the assistant's question win over keyword
// matches anywhere in the history; contacts come from the last user message.
func ExtractApplicant(history []models.Message) models.Applicant {
	a := models.Applicant{
		Amount:     defaultAmount,
		Term:       defaultTerm,
		Purpose:    defaultPurpose,
		CompanyBIN: defaultBIN,
		Name:       defaultName,
		Email:      defaultEmail,
		Phone:      defaultPhone,
	}

	texts := make([]string, len(history))
	for i, m := range history {
		texts[i] = m.Content
	}
	historyText := strings.Join(texts, " ")

	if v, ok := answerTo(history, amountQuestionRe, parseRequestedAmount); ok {
		a.Amount = v
	} else if v, ok := parseRequestedAmount(historyText); ok {
		a.Amount = v
	}

	if v, ok := answerTo(history, termQuestionRe, func(s string) (string, bool) {
		n := firstNumRe.FindString(s)
		return n + " месяцев", n != ""
	}); ok {
		a.Term = v
	} else {
		for _, re := range termRes {
			if m := re.FindStringSubmatch(historyText); m != nil {
				a.Term = m[1] + " месяцев"
				break
			}
		}
	}

	if m := binRe.FindStringSubmatch(historyText); m != nil {
		a.CompanyBIN = m[1]
	}

	if v, ok := answerTo(history, purposeQuestionRe, cleanPurpose); ok {
		a.Purpose = v
	} else {
		lower := strings.ToLower(historyText)
		for _, kw := range purposeKeywords {
			if strings.Contains(lower, kw) {
				a.Purpose = kw
				break
			}
		}
	}

	if last, ok := lastUserMessage(history); ok {
		if m := emailRe.FindString(last); m != "" {
			a.Email = m
		}
		if m := phoneRe.FindAllString(last, -1); len(m) > 0 {
			a.Phone = strings.TrimSpace(m[len(m)-1])
		}
		if m := nameRe.FindString(last); m != "" {
			a.Name = m
		}
	}

	a.Comment = ApplicantComment(a)
	return a
}

// ApplicantComment is the context line passed to the statements converter.
func ApplicantComment(a models.Applicant) string {
	var parts []string
	if a.CompanyBIN != "" && a.CompanyBIN != defaultBIN {
		parts = append(parts, "БИН: "+a.CompanyBIN)
	}
	if a.Name != "" && a.Name != defaultName {
		parts = append(parts, "Имя: "+a.Name)
	}
	if a.Email != "" && a.Email != defaultEmail {
		parts = append(parts, "Email: "+a.Email)
	}
	return strings.Join(parts, " ")
}

// answerTo applies parse to the user reply following each assistant message
// matching question, returning the first successful parse.
func answerTo(history []models.Message, question *regexp.Regexp, parse func(string) (string, bool)) (string, bool) {
	for i := 0; i+1 < len(history); i++ {
		if history[i].Role != models.RoleAssistant || !question.MatchString(history[i].Content) {
			continue
		}
		if history[i+1].Role != models.RoleUser {
			continue
		}
		if v, ok := parse(history[i+1].Content); ok {
			return v, true
		}
	}
	return "", false
}

func parseRequestedAmount(s string) (string, bool) {
	if m := millionsRe.FindStringSubmatch(s); m != nil {
		return m[1] + " млн KZT", true
	}
	if m := longNumRe.FindString(s); m != "" {
		if n, err := strconv.ParseInt(m, 10, 64); err == nil && n >= minRequestedAmount {
			return strconv.FormatInt(n, 10) + " KZT", true
		}
	}
	if m := groupedRe.FindStringSubmatch(s); m != nil {
		if n, err := strconv.ParseInt(m[1]+m[2]+m[3], 10, 64); err == nil && n >= minRequestedAmount {
			return strconv.FormatInt(n, 10) + " KZT", true
		}
	}
	if m := thousandsRe.FindStringSubmatch(s); m != nil {
		if n, err := strconv.ParseInt(m[1], 10, 64); err == nil && n*1000 >= minRequestedAmount {
			return strconv.FormatInt(n*1000, 10) + " KZT", true
		}
	}
	return "", false
}

func cleanPurpose(s string) (string, bool) {
	s = attachedFileRe.ReplaceAllString(s, "")
	s = dateTagRe.ReplaceAllString(s, "")
	s = leadingBracketRe.ReplaceAllString(s, "")
	s = strings.TrimSpace(s)
	return s, s != ""
}

func lastUserMessage(history []models.Message) (string, bool) {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == models.RoleUser {
			return history[i].Content, true
		}
	}
	return "", false
}
