package commands

import (
	"fruittrace/cmd/tracectl/output"
	"fruittrace/internal/database"
	"fruittrace/internal/service"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newSeedCmd(g *globalFlags) *cobra.Command {
	var farm service.CreateFarmRequest
	var cert service.CreateCertificationRequest

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Insert a demo farm and certification",
		Long: `Insert one farm and one certification so products can be submitted.

Examples:
  tracectl seed
  tracectl seed --farm "Highland Orchard" --cert GlobalGAP`,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, cfg, err := g.open()
			if err != nil {
				return err
			}
			defer database.Close(db)

			svc := newServices(db, cfg)
			ctx := cmd.Context()
			f, err := svc.catalog.CreateFarm(ctx, uuid.Nil, farm)
			if err != nil {
				return err
			}
			c, err := svc.catalog.CreateCertification(ctx, uuid.Nil, cert)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			output.Success(out, "Farm %s (%s)", f.Name, f.ID)
			output.Success(out, "Certification %s (%s)", c.Name, c.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&farm.Name, "farm", "Green Valley Farm", "Farm name")
	cmd.Flags().StringVar(&farm.Address, "farm-address", "Da Lat, Lam Dong", "Farm address")
	cmd.Flags().StringVar(&cert.Name, "cert", "VietGAP", "Certification name")
	cmd.Flags().StringVar(&cert.Issuer, "cert-issuer", "Ministry of Agriculture", "Certification issuer")
	return cmd
}
