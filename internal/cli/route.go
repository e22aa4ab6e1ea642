package cli

import (
	"errors"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bellvik/transport-planner/internal/app"
	"github.com/bellvik/transport-planner/internal/routing"
)

func newRouteCommand(e *env) *cobra.Command {
	var (
		from, to       string
		mode           string
		transportTypes []string
		maxTransfers   int
		onlyDirect     bool
	)
	cmd := &cobra.Command{
		Use:   "route [start_lat,start_lon end_lat,end_lon]",
		Short: "Run one query through the cache and the provider chain",
		Example: `  plannerctl route 56.838,60.597 56.844,60.653 --mode car
  plannerctl route --from circus --to upi --types tram,bus`,
		Args: cobra.RangeArgs(0, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := routing.Options{
				TransportTypes: transportTypes,
				OnlyDirect:     onlyDirect,
			}
			if mode != "" {
				opts.Mode, _ = routing.ParseTravelMode(mode)
			}
			if cmd.Flags().Changed("max-transfers") {
				opts.MaxTransfers = &maxTransfers
			}

			if from != "" || to != "" {
				if len(args) != 0 {
					return errors.New("cli: pass either coordinates or --from/--to")
				}
				return e.withApp(cmd.Context(), func(a *app.App) error {
					plan, err := a.Planner.Plan(cmd.Context(), from, to, opts)
					if err != nil {
						return err
					}
					return e.print(cmd.OutOrStdout(), plan)
				})
			}

			if len(args) != 2 {
				return errors.New("cli: need start and end coordinates as lat,lon")
			}
			src, err := parsePoint(args[0])
			if err != nil {
				return err
			}
			dst, err := parsePoint(args[1])
			if err != nil {
				return err
			}
			return e.withApp(cmd.Context(), func(a *app.App) error {
				res, err := a.Planner.GetRoutes(cmd.Context(), src.Lat, src.Lon, dst.Lat, dst.Lon, opts)
				if err != nil {
					return err
				}
				return e.print(cmd.OutOrStdout(), res)
			})
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "start place name (geocoded)")
	cmd.Flags().StringVar(&to, "to", "", "destination place name (geocoded)")
	cmd.Flags().StringVar(&mode, "mode", "", "transit (default), car, pedestrian or bicycle")
	cmd.Flags().StringSliceVar(&transportTypes, "types", nil, "transit vehicle types, e.g. bus,tram")
	cmd.Flags().IntVar(&maxTransfers, "max-transfers", 0, "transit transfer limit")
	cmd.Flags().BoolVar(&onlyDirect, "only-direct", false, "transit routes without transfers only")
	return cmd
}

func parsePoint(s string) (routing.Coordinates, error) {
	lat, lon, ok := strings.Cut(s, ",")
	if !ok {
		return routing.Coordinates{}, errors.New("cli: coordinates must be lat,lon: " + s)
	}
	var (
		p   routing.Coordinates
		err error
	)
	if p.Lat, err = strconv.ParseFloat(strings.TrimSpace(lat), 64); err != nil {
		return p, errors.New("cli: bad latitude in " + s)
	}
	if p.Lon, err = strconv.ParseFloat(strings.TrimSpace(lon), 64); err != nil {
		return p, errors.New("cli: bad longitude in " + s)
	}
	return p, nil
}
