package api

import "net/http"

// authTransport добавляет заголовок авторизации к каждому исходящему запросу,
// пока у источника есть токен. Токен может исчезнуть между запросами при
// принудительном выходе; такие запросы уходят без заголовка.
type authTransport struct {
	base   http.RoundTripper
	tokens TokenSource
}

func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.tokens != nil {
		if token := t.tokens.Token(); token != "" {
			// Клонирование по контракту RoundTripper: исходный запрос не изменяется.
			req = req.Clone(req.Context())
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}
	return t.base.RoundTrip(req)
}
