package dnsprovider

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/route53"
	r53types "github.com/aws/aws-sdk-go-v2/service/route53/types"
	"golang.org/x/time/rate"

	"github.com/thebronway/domain-manager/internal/config"
	"github.com/thebronway/domain-manager/internal/ddns"
	"github.com/thebronway/domain-manager/internal/domain"
	"github.com/thebronway/domain-manager/pkg/logger"
)

const recordTTL = 300

// Route53 implements the DNS provider contract against AWS Route 53.
// Calls are paced client-side; Route 53 allows five requests per second
// per account and a burst above that returns throttling errors.
type Route53 struct {
	client  *route53.Client
	limiter *rate.Limiter
	log     *logger.Logger
}

// NewRoute53 builds the client and verifies connectivity with a single
// hosted-zone listing, so credential problems fail at startup rather than
// in the first cycle.
func NewRoute53(ctx context.Context, cfg config.AWSConfig) (*Route53, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	c := &Route53{
		client:  route53.NewFromConfig(awsCfg),
		limiter: rate.NewLimiter(rate.Limit(5), 5),
		log:     logger.GetLogger(),
	}

	if _, err := c.client.ListHostedZones(ctx, &route53.ListHostedZonesInput{
		MaxItems: aws.Int32(1),
	}); err != nil {
		return nil, fmt.Errorf("connect to Route 53: %w", err)
	}

	c.log.Info("Route 53 client initialized")
	return c, nil
}

// GetRecord returns the current A-record value for a domain, the alias
// sentinel for alias records, or domain.ErrRecordNotFound.
func (c *Route53) GetRecord(ctx context.Context, name string) (string, error) {
	zoneID, err := c.findHostedZoneID(ctx, name)
	if err != nil {
		return "", err
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	out, err := c.client.ListResourceRecordSets(ctx, &route53.ListResourceRecordSetsInput{
		HostedZoneId:    aws.String(zoneID),
		StartRecordName: aws.String(name),
		StartRecordType: r53types.RRTypeA,
		MaxItems:        aws.Int32(1),
	})
	if err != nil {
		return "", fmt.Errorf("list record sets for %s: %w", name, err)
	}

	if len(out.ResourceRecordSets) == 0 {
		return "", domain.ErrRecordNotFound
	}

	rec := out.ResourceRecordSets[0]
	if aws.ToString(rec.Name) != name+"." {
		return "", domain.ErrRecordNotFound
	}

	if rec.AliasTarget != nil {
		c.log.Warn("Domain is an ALIAS record, DDNS cannot update it", "domain", name)
		return fmt.Sprintf("%s %s", ddns.AliasPrefix, aws.ToString(rec.AliasTarget.DNSName)), nil
	}

	if len(rec.ResourceRecords) == 0 {
		return "", domain.ErrRecordNotFound
	}
	return aws.ToString(rec.ResourceRecords[0].Value), nil
}

// SetRecord upserts the domain's A record to the given IP with TTL 300.
func (c *Route53) SetRecord(ctx context.Context, name, ip string) error {
	zoneID, err := c.findHostedZoneID(ctx, name)
	if err != nil {
		return err
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	_, err = c.client.ChangeResourceRecordSets(ctx, &route53.ChangeResourceRecordSetsInput{
		HostedZoneId: aws.String(zoneID),
		ChangeBatch: &r53types.ChangeBatch{
			Comment: aws.String(fmt.Sprintf("domain-manager DDNS update to %s", ip)),
			Changes: []r53types.Change{
				{
					Action: r53types.ChangeActionUpsert,
					ResourceRecordSet: &r53types.ResourceRecordSet{
						Name: aws.String(name),
						Type: r53types.RRTypeA,
						TTL:  aws.Int64(recordTTL),
						ResourceRecords: []r53types.ResourceRecord{
							{Value: aws.String(ip)},
						},
					},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("update A record for %s: %w", name, err)
	}
	return nil
}

// findHostedZoneID locates the zone whose name is a suffix of the domain.
func (c *Route53) findHostedZoneID(ctx context.Context, name string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	paginator := route53.NewListHostedZonesPaginator(c.client, &route53.ListHostedZonesInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return "", fmt.Errorf("list hosted zones: %w", err)
		}
		for _, zone := range page.HostedZones {
			zoneName := strings.TrimSuffix(aws.ToString(zone.Name), ".")
			if name == zoneName || strings.HasSuffix(name, "."+zoneName) {
				return aws.ToString(zone.Id), nil
			}
		}
	}

	c.log.Error("No hosted zone found for domain", "domain", name)
	return "", domain.ErrZoneNotFound
}
