package backend

import (
	"encoding/base32"
	"fmt"
	"strings"
	"time"

	"github.com/acorn-io/acorn-names/pkg/events"
	"github.com/acorn-io/acorn-names/pkg/namehash"
	"github.com/acorn-io/acorn-names/pkg/registry"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/route53"
	"github.com/aws/aws-sdk-go/service/route53/route53iface"
	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"golang.org/x/exp/maps"
	"k8s.io/apimachinery/pkg/util/wait"
)

const (
	recordPrefix     = "_names."
	publishQueueSize = 1024
	maxChangesPerRun = 500
)

// nodeEncoding renders a 32 byte node id as one 52 character DNS label.
var nodeEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// nameSource is the read side of the registry the publisher needs.
type nameSource interface {
	Record(node common.Hash) (registry.Record, bool)
	Records() []registry.Record
	Name(node common.Hash) (string, bool)
	IsExpired(node common.Hash) bool
}

// Publisher mirrors active names into a Route53 hosted zone as TXT records
// of the form _names.<base32 node>.<zone> = "name=... owner=... store=...
// expiry=... token=...". Labels are case-sensitive and DNS is not, so records
// are keyed by node id rather than by name. It is an event sink: changes are queued and written by Run. Sweep
// reconciles the zone with the registry and repairs anything dropped.
type Publisher struct {
	Svc        route53iface.Route53API
	ZoneID     string
	baseDomain string
	ttl        int64
	interval   time.Duration

	names nameSource
	queue chan common.Hash
}

func NewPublisher(zoneID string, recordTTLSecs int64, sweepInterval time.Duration) (*Publisher, error) {
	s, err := session.NewSession()
	if err != nil {
		return nil, err
	}

	svc := route53.New(s, &aws.Config{
		MaxRetries: aws.Int(3),
	})

	z, err := svc.GetHostedZone(&route53.GetHostedZoneInput{
		Id: aws.String(zoneID),
	})
	if err != nil {
		return nil, err
	}

	return newPublisher(svc, aws.StringValue(z.HostedZone.Id), aws.StringValue(z.HostedZone.Name), recordTTLSecs, sweepInterval), nil
}

func newPublisher(svc route53iface.Route53API, zoneID, baseDomain string, ttl int64, interval time.Duration) *Publisher {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &Publisher{
		Svc:        svc,
		ZoneID:     zoneID,
		baseDomain: strings.TrimSuffix(baseDomain, "."),
		ttl:        ttl,
		interval:   interval,
		queue:      make(chan common.Hash, publishQueueSize),
	}
}

func (p *Publisher) Emit(evs ...events.Event) {
	for _, ev := range evs {
		switch ev.Kind {
		case events.KindRegistered, events.KindRenewed, events.KindTransferred,
			events.KindRecordStoreSet, events.KindAuctionFinalized:
		default:
			continue
		}
		if ev.Node == namehash.Zero || ev.Node == namehash.Root {
			continue
		}
		select {
		case p.queue <- ev.Node:
		default:
			logrus.Warnf("publish queue full, dropping update for %s until the next sweep", ev.Node.Hex())
		}
	}
}

// Run writes queued updates and sweeps the zone until stopCh closes.
func (p *Publisher) Run(stopCh <-chan struct{}) {
	logrus.Infof("starting route53 publisher for zone %v. Sweep interval: %v", p.baseDomain, p.interval)
	go wait.JitterUntil(func() {
		if err := p.Sweep(); err != nil {
			logrus.Errorf("route53 sweep failed: %v", err)
		}
	}, p.interval, .002, true, stopCh)

	for {
		select {
		case <-stopCh:
			return
		case node := <-p.queue:
			if err := p.publish(node); err != nil {
				logrus.Errorf("failed to publish %s: %v", node.Hex(), err)
			}
		}
	}
}

// flush drains the queue synchronously.
func (p *Publisher) flush() error {
	for {
		select {
		case node := <-p.queue:
			if err := p.publish(node); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

func (p *Publisher) publish(node common.Hash) error {
	if p.names == nil {
		return nil
	}
	rec, ok := p.names.Record(node)
	if !ok || !rec.Exists || p.names.IsExpired(node) {
		// Expired names stay published until the sweep finds them gone.
		return nil
	}
	name, ok := p.names.Name(node)
	if !ok {
		return fmt.Errorf("no name for node %s", node.Hex())
	}
	return p.change([]*route53.Change{{
		Action:            aws.String(route53.ChangeActionUpsert),
		ResourceRecordSet: p.recordSet(name, rec),
	}})
}

// Sweep deletes records of names that are no longer active and upserts the
// ones missing or out of date.
func (p *Publisher) Sweep() error {
	if p.names == nil {
		return nil
	}

	want := map[string]*route53.ResourceRecordSet{}
	for _, rec := range p.names.Records() {
		if !rec.Exists || rec.Node == namehash.Root || p.names.IsExpired(rec.Node) {
			continue
		}
		name, ok := p.names.Name(rec.Node)
		if !ok {
			continue
		}
		rrs := p.recordSet(name, rec)
		want[aws.StringValue(rrs.Name)] = rrs
	}

	var changes []*route53.Change
	input := &route53.ListResourceRecordSetsInput{
		HostedZoneId: aws.String(p.ZoneID),
	}
	err := p.Svc.ListResourceRecordSetsPages(input,
		func(page *route53.ListResourceRecordSetsOutput, lastPage bool) bool {
			for _, recordSet := range page.ResourceRecordSets {
				if aws.StringValue(recordSet.Type) != route53.RRTypeTxt {
					continue
				}
				fqdn := strings.ToLower(strings.TrimSuffix(aws.StringValue(recordSet.Name), "."))
				if !strings.HasPrefix(fqdn, recordPrefix) {
					continue
				}
				recordSet.Name = aws.String(fqdn)
				wanted, ok := want[fqdn]
				if !ok {
					changes = append(changes, &route53.Change{
						Action:            aws.String(route53.ChangeActionDelete),
						ResourceRecordSet: recordSet,
					})
					continue
				}
				if txtValue(recordSet) == txtValue(wanted) {
					delete(want, fqdn)
				}
			}
			return true
		})
	if err != nil {
		return fmt.Errorf("error communicating with Route53: %w", err)
	}

	for _, rrs := range maps.Values(want) {
		changes = append(changes, &route53.Change{
			Action:            aws.String(route53.ChangeActionUpsert),
			ResourceRecordSet: rrs,
		})
	}
	if len(changes) == 0 {
		return nil
	}

	total := len(changes)
	for len(changes) > 0 {
		n := len(changes)
		if n > maxChangesPerRun {
			n = maxChangesPerRun
		}
		if err := p.change(changes[:n]); err != nil {
			return err
		}
		changes = changes[n:]
	}
	logrus.Infof("route53 sweep applied %d changes", total)
	return nil
}

func (p *Publisher) change(changes []*route53.Change) error {
	_, err := p.Svc.ChangeResourceRecordSets(&route53.ChangeResourceRecordSetsInput{
		HostedZoneId: aws.String(p.ZoneID),
		ChangeBatch: &route53.ChangeBatch{
			Changes: changes,
		},
	})
	return err
}

// recordFQDN maps a node to "_names.<base32 node>.<zone>", all lower case.
func (p *Publisher) recordFQDN(node common.Hash) string {
	return recordPrefix + strings.ToLower(nodeEncoding.EncodeToString(node[:])) + "." + strings.ToLower(p.baseDomain)
}

func (p *Publisher) recordSet(name string, rec registry.Record) *route53.ResourceRecordSet {
	value := fmt.Sprintf("name=%s owner=%s store=%s expiry=%d token=%d",
		name, rec.Owner.Hex(), rec.RecordStore.Hex(), rec.Expiry, rec.TokenID)
	return &route53.ResourceRecordSet{
		Type: aws.String(route53.RRTypeTxt),
		Name: aws.String(p.recordFQDN(rec.Node)),
		TTL:  aws.Int64(p.ttl),
		ResourceRecords: []*route53.ResourceRecord{{
			Value: aws.String(cleanRecordValue(value)),
		}},
	}
}

func cleanRecordValue(value string) string {
	if !strings.HasPrefix(value, "\"") {
		return "\"" + value + "\""
	}
	return value
}

func txtValue(rrs *route53.ResourceRecordSet) string {
	var values []string
	for _, rr := range rrs.ResourceRecords {
		values = append(values, aws.StringValue(rr.Value))
	}
	return strings.Join(values, ",")
}
