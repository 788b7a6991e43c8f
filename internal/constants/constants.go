package constants

const USER_AGENT = "marketguard/0.1.0 (+https://github.com/warofcoins/marketguard)"
