package api

import (
	"github.com/gin-gonic/gin"
	"golang.org/x/text/language"
)

var (
	nepali = language.MustParse("ne")

	matcher = language.NewMatcher([]language.Tag{language.English, nepali})
)

// catalog maps an error code to its message per language. English is the fallback.
var catalog = map[string]map[string]string{
	"en": {
		"empty_cart":                   "Your cart is empty.",
		"address_not_found":            "Address not found.",
		"address_unusable":             "Address does not exist or is no longer active.",
		"billing_address_required":     "A billing address is required when it differs from the shipping address.",
		"invalid_state_transition":     "This action is not allowed in the current state.",
		"order_number_collision":       "Could not allocate an order number, please try again.",
		"stock_exceeded":               "Requested quantity exceeds available stock.",
		"below_minimum_order":          "Quantity is below the minimum order quantity.",
		"product_unavailable":          "Product is not available.",
		"order_not_found":              "Order not found.",
		"product_not_found":            "Product not found.",
		"cart_item_not_found":          "Cart item not found.",
		"saved_item_not_found":         "Saved item not found.",
		"quote_not_found":              "Quote request not found.",
		"user_not_found":               "User not found.",
		"quote_expired":                "This quote has expired.",
		"quote_conversion_unsupported": "Accepted quotes cannot be converted to orders yet.",
		"version_conflict":             "The record was changed by someone else, reload and retry.",
		"invalid_payment_method":       "Unknown payment method.",
		"invalid_quote":                "Quote request is incomplete.",
		"invalid_request":              "The request is invalid.",
		"already_exists":               "A record with the same identifier already exists.",
		"invalid_id":                   "Invalid identifier.",
		"invalid_cursor":               "Invalid pagination cursor.",
		"unauthorized":                 "Authentication required.",
		"forbidden":                    "You do not have permission for this action.",
		"request_in_progress":          "A request with this idempotency key is already in progress.",
		"busy":                         "The store is busy, please try again shortly.",
		"not_found":                    "Resource not found.",
		"internal":                     "Something went wrong.",
		"field_required":               "This field is required.",
		"field_min":                    "Value is too small.",
		"field_max":                    "Value is too large.",
		"field_oneof":                  "Value is not one of the allowed choices.",
		"field_invalid":                "Value is invalid.",
	},
	"ne": {
		"empty_cart":                   "कार्ट खाली छ।",
		"address_not_found":            "ठेगाना फेला परेन।",
		"address_unusable":             "ठेगाना छैन वा अब सक्रिय छैन।",
		"billing_address_required":     "ढुवानी ठेगाना भन्दा फरक भएमा बिलिङ ठेगाना आवश्यक छ।",
		"invalid_state_transition":     "यो अवस्थामा यो कार्य गर्न सकिँदैन।",
		"order_number_collision":       "आदेश नम्बर बनाउन सकिएन, फेरि प्रयास गर्नुहोस्।",
		"stock_exceeded":               "माग गरिएको मात्रा स्टकमा उपलब्ध मात्रा भन्दा बढी छ।",
		"below_minimum_order":          "मात्रा न्यूनतम अर्डर मात्रा भन्दा कम छ।",
		"product_unavailable":          "उत्पादन उपलब्ध छैन।",
		"order_not_found":              "आदेश फेला परेन।",
		"product_not_found":            "उत्पादन फेला परेन।",
		"cart_item_not_found":          "कार्ट आइटम फेला परेन।",
		"saved_item_not_found":         "सेभ गरिएको आइटम फेला परेन।",
		"quote_not_found":              "कोटेशन अनुरोध फेला परेन।",
		"user_not_found":               "प्रयोगकर्ता फेला परेन।",
		"quote_expired":                "यो कोटेशन समाप्त भइसकेको छ।",
		"quote_conversion_unsupported": "स्वीकृत कोटेशनलाई अहिले आदेशमा बदल्न सकिँदैन।",
		"version_conflict":             "रेकर्ड अरू कसैले परिवर्तन गर्यो, फेरि लोड गर्नुहोस्।",
		"invalid_payment_method":       "अज्ञात भुक्तानी विधि।",
		"invalid_quote":                "कोटेशन अनुरोध अपूर्ण छ।",
		"invalid_request":              "अनुरोध मान्य छैन।",
		"already_exists":               "उही पहिचान भएको रेकर्ड पहिले नै छ।",
		"invalid_id":                   "अमान्य पहिचान नम्बर।",
		"invalid_cursor":               "अमान्य पृष्ठ कर्सर।",
		"unauthorized":                 "प्रमाणीकरण आवश्यक छ।",
		"forbidden":                    "तपाईंलाई यो कार्यको अनुमति छैन।",
		"request_in_progress":          "यही कुञ्जीको अनुरोध प्रक्रियामा छ।",
		"busy":                         "स्टोर व्यस्त छ, कृपया केही बेरपछि फेरि प्रयास गर्नुहोस्।",
		"not_found":                    "स्रोत फेला परेन।",
		"internal":                     "केही गडबड भयो।",
		"field_required":               "यो फिल्ड आवश्यक छ।",
		"field_min":                    "मान धेरै सानो छ।",
		"field_max":                    "मान धेरै ठूलो छ।",
		"field_oneof":                  "मान अनुमति दिइएका विकल्पहरूमध्ये होइन।",
		"field_invalid":                "मान अमान्य छ।",
	},
}

// lang picks the response language from Accept-Language.
func lang(c *gin.Context) string {
	tags, _, err := language.ParseAcceptLanguage(c.GetHeader("Accept-Language"))
	if err != nil || len(tags) == 0 {
		return "en"
	}
	_, idx, confidence := matcher.Match(tags...)
	if confidence == language.No || idx != 1 {
		return "en"
	}
	return "ne"
}

func message(c *gin.Context, code string) string {
	if msg, ok := catalog[lang(c)][code]; ok {
		return msg
	}
	if msg, ok := catalog["en"][code]; ok {
		return msg
	}
	return code
}
