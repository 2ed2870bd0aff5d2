package service

import (
	"strings"

	"github.com/unclebandit/bulkmail-backend/internal/model"
	"github.com/unclebandit/bulkmail-backend/internal/platform/validation"
)

var commonDomains = map[string]bool{
	"gmail.com": true, "yahoo.com": true, "hotmail.com": true, "outlook.com": true,
	"aol.com": true, "icloud.com": true, "protonmail.com": true, "mail.com": true,
	"zoho.com": true, "yandex.com": true, "gmx.com": true, "mail.ru": true,
	"live.com": true, "msn.com": true, "me.com": true, "example.com": true,
}

// Known typos of big providers and obvious placeholders.
var invalidDomains = map[string]bool{
	"gmail.comm": true, "gmial.com": true, "gmai.com": true, "yahooo.com": true,
	"yaho.com": true, "hotmial.com": true, "outlok.com": true, "test.com": true,
	"fake.com": true, "nonexistentdomain.abc": true,
}

var disposableDomains = []string{
	"10minutemail.com", "tempmail.org", "guerrillamail.com",
	"throwaway.email", "temp-mail.org", "mailinator.com",
}

var invalidTLDs = map[string]bool{
	"abc": true, "xyz": true, "test": true, "fake": true, "invalid": true,
}

// ValidateEmail runs a syntax check followed by the domain heuristics. It never
// touches the network.
func ValidateEmail(email string) model.EmailCheck {
	check := model.EmailCheck{Email: email}
	reject := func(reason string) model.EmailCheck {
		check.Reason = reason
		return check
	}

	if !validation.IsEmail(email) {
		return reject("Invalid email format")
	}

	at := strings.LastIndex(email, "@")
	domain := strings.ToLower(email[at+1:])

	if invalidDomains[domain] {
		return reject("Invalid or misspelled email domain")
	}
	for _, d := range disposableDomains {
		if strings.Contains(domain, d) {
			return reject("Disposable email addresses are not allowed")
		}
	}

	tld := domain[strings.LastIndex(domain, ".")+1:]
	if invalidTLDs[tld] {
		return reject("Invalid or non-existent domain")
	}
	if strings.Contains(email, "..") {
		return reject("Invalid email format (double dots)")
	}
	if strings.ContainsAny(email, "<>") || strings.Contains(strings.ToLower(email), "script") {
		return reject("Invalid email format (contains HTML/script tags)")
	}
	if !strings.Contains(domain, ".") {
		return reject("Invalid domain format")
	}
	if len(tld) < 2 || len(tld) > 6 {
		return reject("Invalid top-level domain")
	}

	check.IsValid = true
	if commonDomains[domain] {
		check.Reason = "Valid email address"
	} else {
		check.Reason = "Valid email address (uncommon domain)"
	}
	return check
}

// ValidateEmails checks a batch, preserving input order.
func ValidateEmails(emails []string) []model.EmailCheck {
	out := make([]model.EmailCheck, len(emails))
	for i, e := range emails {
		out[i] = ValidateEmail(strings.TrimSpace(e))
	}
	return out
}
