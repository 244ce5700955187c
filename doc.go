// Package request is the HTTP client of the backstage admin console. Every
// call goes through an explicit, ordered pipeline:
//
//   - Request steps: encode, authorization, dedup, then user supplied steps
//   - Transport: optional rate limiting and a middleware chain around net/http
//   - Response steps: release, user supplied steps, cancellation, transport,
//     blob and envelope classification
//
// Identical in-flight calls (same method, URL, params and body) are
// deduplicated by cancel-and-replace: the newer call wins and the older one
// returns a DuplicateCancelled error that is never shown to the user.
//
// Responses carry a {code, message, data} envelope. Code 2000 is success; any
// other code becomes a Business error routed through the Classifier to the
// configured Notifier and Navigator. Codes listed by WithRefreshCodes (4010 by
// default) and HTTP 401 mean the access token expired: the call is suspended,
// a single refresh runs for all concurrent callers, and each suspended call is
// replayed once in arrival order. A failed refresh clears the credentials,
// logs out and redirects to the login path.
//
// Typical usage:
//
//	client := request.New(
//	    request.WithBaseURL("https://admin.example.com/api"),
//	    request.WithTokenStore(store),
//	    request.WithHTTPRefresher(request.NewHTTPRefresher("https://admin.example.com/api", 5*time.Second)),
//	    request.WithNotifier(notifier),
//	    request.WithNavigator(navigator),
//	)
//	var users []User
//	err := client.GetJSON(ctx, "/users", request.Params{{Key: "page", Value: "1"}}, &users)
package request
