package entity

import (
	"fmt"
	"time"
)

type NotificationKind string

const (
	NotificationListingLive    NotificationKind = "listing_live"
	NotificationListingExpired NotificationKind = "listing_expired"
	NotificationListingRenewed NotificationKind = "listing_renewed"
	NotificationListingSold    NotificationKind = "listing_sold"
	NotificationListingPurged  NotificationKind = "listing_purged"
	NotificationOfferReceived  NotificationKind = "offer_received"
	NotificationOfferAccepted  NotificationKind = "offer_accepted"
	NotificationOfferRejected  NotificationKind = "offer_rejected"
	NotificationOfferCountered NotificationKind = "offer_countered"
	NotificationOfferWithdrawn NotificationKind = "offer_withdrawn"
	// NotificationListingRemoved goes to buyers whose open offers were
	// withdrawn because the listing itself was deleted or purged.
	NotificationListingRemoved NotificationKind = "listing_removed"
)

// Notification is immutable once created except for the IsRead flag.
type Notification struct {
	ID          string           `bson:"_id,omitempty" json:"id"`
	UserID      string           `bson:"user_id" json:"userId"`
	AdID        string           `bson:"ad_id" json:"adId"`
	AdURL       string           `bson:"ad_url" json:"adUrl"`
	Kind        NotificationKind `bson:"kind" json:"kind"`
	Title       string           `bson:"title" json:"title"`
	Description string           `bson:"description" json:"description"`
	Body        string           `bson:"body" json:"body"`
	IsRead      bool             `bson:"is_read" json:"isRead"`
	CreatedAt   time.Time        `bson:"created_at" json:"createdAt"`
}

// BuildNotification fills in the user-facing copy for a lifecycle or offer
// event against the given listing.
func BuildNotification(kind NotificationKind, recipientID string, listing *Listing, now time.Time) *Notification {
	n := &Notification{
		UserID:    recipientID,
		AdID:      listing.ID,
		AdURL:     listing.AdURL(),
		Kind:      kind,
		CreatedAt: now.UTC(),
	}

	item := listing.Title
	switch kind {
	case NotificationListingLive:
		n.Title = fmt.Sprintf("Listing %s is live!", item)
		n.Description = "Congratulations, your listing is live!"
		n.Body = fmt.Sprintf("Thank you for choosing PepperMint to place your %s %s on the market. Your ad has been published to the marketplace and we will keep you posted on any new developments.", listing.Brand, listing.Model)
	case NotificationListingExpired:
		n.Title = fmt.Sprintf("Listing %s has expired", item)
		n.Description = "Your listing reached the end of its active period."
		n.Body = fmt.Sprintf("Your listing %s is no longer visible in the marketplace. You can renew it from My Ads to put it back on the market.", item)
	case NotificationListingRenewed:
		n.Title = fmt.Sprintf("Listing %s has been renewed", item)
		n.Description = "Your listing is active again."
		n.Body = fmt.Sprintf("Your listing %s is back on the marketplace for another %d days.", item, int(ActiveLifetime.Hours()/24))
	case NotificationListingSold:
		n.Title = fmt.Sprintf("Listing %s is marked as sold", item)
		n.Description = "Congratulations on your sale!"
		n.Body = fmt.Sprintf("Your listing %s has been marked as sold and is no longer accepting offers.", item)
	case NotificationListingPurged:
		n.Title = fmt.Sprintf("Listing %s has been removed", item)
		n.Description = "Your listing reached the end of its lifetime."
		n.Body = fmt.Sprintf("Your listing %s has been removed from the marketplace after %d days. Any open offers were withdrawn.", item, int(PurgeLifetime.Hours()/24))
	case NotificationOfferReceived:
		n.Title = fmt.Sprintf("New offer on %s", item)
		n.Description = "A buyer has made you an offer."
		n.Body = fmt.Sprintf("You received a new offer on your listing %s. Head over to My Ads to accept, reject or counter it.", item)
	case NotificationOfferAccepted:
		n.Title = fmt.Sprintf("Offer on %s accepted", item)
		n.Description = "The offer was accepted."
		n.Body = fmt.Sprintf("The offer on %s was accepted. Get in touch to arrange the handover.", item)
	case NotificationOfferRejected:
		n.Title = fmt.Sprintf("Offer on %s declined", item)
		n.Description = "The offer was declined."
		n.Body = fmt.Sprintf("The offer on %s was not accepted this time.", item)
	case NotificationOfferCountered:
		n.Title = fmt.Sprintf("Counter-offer on %s", item)
		n.Description = "The seller made a counter-offer."
		n.Body = fmt.Sprintf("The seller countered your offer on %s. You can accept or reject the new amount.", item)
	case NotificationOfferWithdrawn:
		n.Title = fmt.Sprintf("An offer on %s was withdrawn", item)
		n.Description = "The buyer withdrew their offer."
		n.Body = fmt.Sprintf("An offer on your listing %s has been withdrawn by the buyer.", item)
	case NotificationListingRemoved:
		n.Title = fmt.Sprintf("Listing %s is no longer available", item)
		n.Description = "The listing was removed from the marketplace."
		n.Body = fmt.Sprintf("The listing %s you made an offer on has been removed. Your open offer was withdrawn.", item)
	default:
		n.Title = fmt.Sprintf("Update on %s", item)
		n.Description = "There is news about your listing."
		n.Body = fmt.Sprintf("Something changed on your listing %s.", item)
	}
	return n
}
