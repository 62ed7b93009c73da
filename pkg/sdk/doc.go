// Package scout is a Go client for the scout discovery API.
//
// A client talks to one server and authenticates with a bearer token:
//
//	client, _ := scout.New("https://scout.internal",
//	    scout.WithToken(token),
//	)
//	page, _ := client.Discover(ctx, "profile", scout.DiscoverRequest{
//	    Center:   &scout.Center{Lat: 55.75, Lon: 37.62},
//	    RadiusKm: scout.Float(10),
//	    Sort:     "distance",
//	})
//
// # Paging
//
// Pages walks a whole session, following nextCursor until the server
// reports there is nothing left:
//
//	for page, err := range client.Pages(ctx, "live", req) {
//	    if err != nil {
//	        return err
//	    }
//	    render(page.Items)
//	}
package scout
