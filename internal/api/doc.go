// Package api hosts the HTTP application: login, account and client
// management, keyword and mention listings, and the admin console. Routes
// are JSON except GET /login, which serves a small HTML form.
//   - GET /health and /metrics are public.
//   - /me, /clients, /keywords, /mentions, /profile require a session.
//   - /users, /admin/... and every write to clients or keywords require the
//     admin role.
package api
