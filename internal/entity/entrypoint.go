package entity

type ENTRYPOINT string

var (
	EntrypointListToken     ENTRYPOINT = "list_token"
	EntrypointBuy           ENTRYPOINT = "buy"
	EntrypointCancelListing ENTRYPOINT = "cancel_listing"
	EntrypointMakeOffer     ENTRYPOINT = "make_offer"
	EntrypointAcceptOffer   ENTRYPOINT = "accept_offer"
	EntrypointWithdrawOffer ENTRYPOINT = "withdraw_offer"
)
