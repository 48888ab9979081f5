package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// queryCondition represents a single filter of the grade query
type queryCondition struct {
	Name         string `json:"name"`
	Caption      string `json:"caption"`
	LinkOpt      string `json:"linkOpt"`
	BuilderList  string `json:"builderList"`
	Builder      string `json:"builder"`
	Value        any    `json:"value"`
	ValueDisplay string `json:"value_display"`
}

// gradeQuery only lists valid grades and keeps every attempt of repeated courses
var gradeQuery = []queryCondition{
	{
		Name:         "SFYX",
		Caption:      "是否有效",
		LinkOpt:      "AND",
		BuilderList:  "cbl_m_List",
		Builder:      "m_value_equal",
		Value:        "1",
		ValueDisplay: "是",
	},
	{
		Name:         "SHOWMAXCJ",
		Caption:      "显示最高成绩",
		LinkOpt:      "AND",
		BuilderList:  "cbl_m_List",
		Builder:      "m_value_equal",
		Value:        0,
		ValueDisplay: "否",
	},
}

const gradeOrder = "-XNXQDM,-KCH,-KXH"

// Grades queries all grades of the logged-in user.
// The response payload is returned exactly as the grade service sent it.
// If Login did not succeed before, the grade index URL is used as the referer and the service will most likely
// reject the query.
func (session *Session) Grades(ctx context.Context) (json.RawMessage, error) {
	if !session.LoggedIn() {
		session.logger.Warn().Msg("querying grades without a successful login")
	}

	querySetting, err := json.Marshal(gradeQuery)
	if err != nil {
		return nil, err
	}
	values := url.Values{
		"querySetting": {string(querySetting)},
		"*order":       {gradeOrder},
		"pageSize":     {"999"},
		"pageNumber":   {"1"},
	}

	referer := session.referer
	if referer == "" {
		referer = session.gradeIndexURL()
	}
	header := http.Header{}
	header.Set("Origin", session.opts.AppsBaseURL)
	header.Set("Referer", referer)
	header.Set("X-Requested-With", "XMLHttpRequest")
	header.Set("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8")

	result, err := session.post(ctx, session.opts.AppsBaseURL+gradeQueryPath, values, header)
	if err != nil {
		return nil, fmt.Errorf("query grades: %w", err)
	}

	if !json.Valid(result.Body) {
		return nil, &QueryError{Code: "<invalid>", Raw: result.Body}
	}
	code, err := statusCode(result.Body)
	if err != nil {
		return nil, &QueryError{Code: "<invalid>", Raw: result.Body}
	}
	if code != "0" {
		return nil, &QueryError{Code: code, Raw: result.Body}
	}
	session.logger.Info().Int("bytes", len(result.Body)).Msg("queried grades")
	return json.RawMessage(result.Body), nil
}

// statusCode extracts the code field of a grade service response.
// Both the string "0" and any numeric zero are normalized to "0".
func statusCode(body []byte) (string, error) {
	var envelope struct {
		Code json.RawMessage `json:"code"`
	}
	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.UseNumber()
	if err := decoder.Decode(&envelope); err != nil {
		return "", err
	}
	if len(envelope.Code) == 0 {
		return "<missing>", nil
	}

	var value any
	decoder = json.NewDecoder(bytes.NewReader(envelope.Code))
	decoder.UseNumber()
	if err := decoder.Decode(&value); err != nil {
		return "", err
	}
	switch typed := value.(type) {
	case string:
		return typed, nil
	case json.Number:
		if f, err := typed.Float64(); err == nil && f == 0 {
			return "0", nil
		}
		return typed.String(), nil
	default:
		return string(envelope.Code), nil
	}
}
